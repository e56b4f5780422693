package draft

import (
	"context"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/kabini-ai/kabini/pkg/domain"
)

// DefaultQuestionCount is the batch size a fresh or restored draft starts
// with. A stored value is deliberately never restored.
const DefaultQuestionCount = 5

// Store is the persistence contract for draft snapshots
type Store interface {
	Put(ctx context.Context, key string, draft *domain.Draft) error
	Get(ctx context.Context, key string) (*domain.Draft, error)
	MostRecent(ctx context.Context) (*domain.Draft, error)
	Touch(ctx context.Context, key string, at time.Time) error
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Manager applies the draft-cache lifecycle policy: what gets persisted, what
// survives a restart, and what resets always.
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager creates a draft manager over the given store
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// New returns a fresh working draft with documented defaults
func (m *Manager) New() *domain.Draft {
	return &domain.Draft{
		ContentHash:   "0",
		QuestionCount: DefaultQuestionCount,
	}
}

// Persist saves the full draft snapshot under its current cache key. Trivial
// drafts (no content, no URLs, no QA items) are never persisted. Storage
// failures are logged and swallowed, scratch state is never worth failing the
// caller over.
func (m *Manager) Persist(ctx context.Context, d *domain.Draft) {
	if d == nil || d.Empty() {
		return
	}

	urls := make([]string, len(d.URLs))
	for i, u := range d.URLs {
		urls[i] = u.URL
	}
	d.ContentHash = Key(d.Content, urls)
	d.Metrics.ContentLength = len(d.Content)

	now := m.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.LastAccessed = now

	if err := m.store.Put(ctx, d.ContentHash, d); err != nil {
		lgr.Printf("[WARN] failed to persist draft %s: %v", d.ContentHash, err)
	}
}

// Restore rehydrates the most recently accessed draft, normalizing fields
// that must not survive a reload:
//   - URL records stuck in "extracting" go back to "pending", the extraction
//     call they were waiting on is gone
//   - crawling and processing flags are forced off
//   - questionCount resets to its default so a stale batch size can't surprise
//
// Returns a fresh draft when nothing restorable exists. The restored entry's
// last_accessed is touched asynchronously.
func (m *Manager) Restore(ctx context.Context) *domain.Draft {
	stored, err := m.store.MostRecent(ctx)
	if err != nil {
		lgr.Printf("[WARN] draft restore failed: %v", err)
		return m.New()
	}
	if stored == nil {
		return m.New()
	}

	for i := range stored.URLs {
		if stored.URLs[i].Status == domain.URLExtracting {
			stored.URLs[i].Status = domain.URLPending
		}
	}
	stored.Flags.Crawling = false
	stored.Flags.Processing = false
	stored.Flags.Extracting = false
	stored.QuestionCount = DefaultQuestionCount
	if stored.ContentHash == "" {
		stored.ContentHash = "0"
	}

	// LRU touch without blocking the restore
	key, now := stored.ContentHash, m.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.Touch(ctx, key, now); err != nil {
			lgr.Printf("[WARN] failed to touch draft %s: %v", key, err)
		}
	}()

	return stored
}

// Reset purges all draft entries and returns a fresh working draft, the
// explicit "new analysis" action
func (m *Manager) Reset(ctx context.Context) *domain.Draft {
	if err := m.store.DeleteAll(ctx); err != nil {
		lgr.Printf("[WARN] failed to purge draft cache: %v", err)
	}
	return m.New()
}
