package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
)

// DraftPruner removes draft entries not accessed since a cutoff
type DraftPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically prunes stale draft entries. The explicit "new
// analysis" purge remains the primary deletion path, the janitor only keeps
// abandoned drafts from accumulating forever.
type Janitor struct {
	drafts   DraftPruner
	ttl      time.Duration
	interval time.Duration
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewJanitor creates a janitor pruning drafts older than ttl every interval
func NewJanitor(drafts DraftPruner, ttl, interval time.Duration) *Janitor {
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	if interval == 0 {
		interval = time.Hour
	}
	return &Janitor{drafts: drafts, ttl: ttl, interval: interval}
}

// Start begins the background pruning loop
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.prune(ctx)
			}
		}
	}()

	lgr.Printf("[INFO] draft janitor started, ttl %v, interval %v", j.ttl, j.interval)
}

// Stop terminates the pruning loop and waits for it to finish
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *Janitor) prune(ctx context.Context) {
	removed, err := j.drafts.DeleteOlderThan(ctx, time.Now().Add(-j.ttl))
	if err != nil {
		lgr.Printf("[WARN] draft pruning failed: %v", err)
		return
	}
	if removed > 0 {
		lgr.Printf("[INFO] pruned %d stale drafts", removed)
	}
}
