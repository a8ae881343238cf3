// Package audit keeps a local log of operator actions taken through the
// dashboard. Campaign data itself is never stored here.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketAudit = []byte("audit")

// Action names an operator action
type Action string

const (
	ActionCampaignStart Action = "campaign.start"
	ActionSendPending   Action = "optout.send_pending"
	ActionCleanOptOuts  Action = "optout.clean"
	ActionExport        Action = "replies.export"
)

// Outcomes
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

// Entry is one recorded action
type Entry struct {
	ID         string    `json:"id"`
	Action     Action    `json:"action"`
	Outcome    string    `json:"outcome"`
	CampaignID string    `json:"campaign_id,omitempty"`
	Campaign   string    `json:"campaign,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Source     string    `json:"source,omitempty"` // cli or web
	RequestID  string    `json:"request_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Recorder stores entries
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// Discard is a Recorder that drops everything
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, *Entry) error { return nil }

// Log is a BoltDB-backed audit log
type Log struct {
	db   *bolt.DB
	path string
	own  bool
}

// Open opens (creating if needed) the audit database at path
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	l, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	l.path = path
	l.own = true
	return l, nil
}

// New wraps an already open database
func New(db *bolt.DB) (*Log, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAudit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audit bucket: %w", err)
	}
	return &Log{db: db, path: db.Path()}, nil
}

// Path returns the database file path
func (l *Log) Path() string {
	return l.path
}

// Close closes the database if Open created it
func (l *Log) Close() error {
	if !l.own {
		return nil
	}
	return l.db.Close()
}

// Record stores an entry, assigning its ID and time when unset
func (l *Log) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeOK
	}
	if e.RequestID == "" {
		e.RequestID = middleware.GetReqID(ctx)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAudit).Put(makeIndexKey(e.RecordedAt, e.ID), data)
	})
}

// ListFilter narrows List
type ListFilter struct {
	Action     Action
	CampaignID string
	Limit      int
	Offset     int
}

// List returns matching entries, newest first
func (l *Log) List(ctx context.Context, filter ListFilter) ([]*Entry, error) {
	var entries []*Entry

	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()

		skipped := 0
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			if filter.Action != "" && e.Action != filter.Action {
				continue
			}
			if filter.CampaignID != "" && e.CampaignID != filter.CampaignID {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			entries = append(entries, &e)
			if filter.Limit > 0 && len(entries) >= filter.Limit {
				break
			}
		}
		return nil
	})

	return entries, err
}

// Prune deletes entries older than the retention period
func (l *Log) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := makeIndexKey(time.Now().Add(-olderThan), "")
	var count int

	err := l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketAudit)
		c := bucket.Cursor()

		var keys [][]byte
		for k, _ := c.First(); k != nil && string(k) < string(cutoff); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})

	return count, err
}

// keys sort by time: fixed-width UTC timestamp, then the entry ID
func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format("2006-01-02T15:04:05.000000000Z") + ":" + id)
}
