// Package poller runs a refresh function on a fixed interval for as long as
// a view is mounted.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/bulkdash/internal/metrics"
)

// DefaultInterval is the campaign state refresh period
const DefaultInterval = 5 * time.Second

// Func is one refresh. The context is cancelled when the poller stops.
type Func func(ctx context.Context) error

// Poller calls fn once on Start and then every interval until Stop. Calls
// never overlap: fn runs on the loop goroutine, and a tick that fires while
// fn is still running is dropped by the ticker.
type Poller struct {
	name     string
	interval time.Duration
	fn       Func
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a stopped poller
func New(name string, interval time.Duration, fn Func, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With("component", "poller", "view", name),
	}
}

// Start begins polling. The first refresh happens immediately. Starting a
// running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.run(ctx, p.done)
	p.logger.Debug("poller started", "interval", p.interval)
}

// Stop cancels the in-flight refresh, if any, and waits for the loop to
// exit. No refresh starts after Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Debug("poller stopped")
}

// Running reports whether the poller is between Start and Stop
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Interval returns the refresh period
func (p *Poller) Interval() time.Duration {
	return p.interval
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer func() {
		// the parent context may end the loop without Stop
		p.mu.Lock()
		if p.done == done {
			p.running = false
			p.cancel()
		}
		p.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := p.fn(ctx)
	switch {
	case err == nil:
		metrics.IncPollTicks(p.name, "ok")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// stopped mid-refresh
		metrics.IncPollTicks(p.name, "cancelled")
	default:
		// keep the previous data on screen and try again next tick
		metrics.IncPollTicks(p.name, "error")
		p.logger.Warn("refresh failed", "error", err)
	}
}
