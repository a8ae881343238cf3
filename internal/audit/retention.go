package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPruneInterval is how often expired entries are removed
const DefaultPruneInterval = time.Hour

// Pruner removes entries older than the retention period on a schedule
type Pruner struct {
	log       *Log
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	wg        sync.WaitGroup
	done      chan struct{}
	stopOnce  sync.Once
}

// NewPruner creates a pruner. A zero retention keeps entries forever and
// makes Start a no-op.
func NewPruner(log *Log, retention, interval time.Duration, logger *slog.Logger) *Pruner {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	return &Pruner{
		log:       log,
		retention: retention,
		interval:  interval,
		logger:    logger.With("component", "audit_pruner"),
		done:      make(chan struct{}),
	}
}

// Start runs a prune immediately, then every interval
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return
	}
	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Info("audit pruner started", "retention", p.retention, "interval", p.interval)
}

// Stop stops the pruner and waits for it to finish
func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *Pruner) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	n, err := p.log.Prune(ctx, p.retention)
	if err != nil {
		p.logger.Error("failed to prune audit log", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("pruned audit log", "deleted", n)
	}
}
