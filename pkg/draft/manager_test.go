package draft

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabini-ai/kabini/pkg/domain"
)

// fakeStore is an in-memory Store for manager tests
type fakeStore struct {
	drafts  map[string]*domain.Draft
	recent  *domain.Draft
	touched chan string

	putErr    error
	recentErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{drafts: make(map[string]*domain.Draft), touched: make(chan string, 10)}
}

func (f *fakeStore) Put(_ context.Context, key string, draft *domain.Draft) error {
	if f.putErr != nil {
		return f.putErr
	}
	copied := *draft
	f.drafts[key] = &copied
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) (*domain.Draft, error) {
	return f.drafts[key], nil
}

func (f *fakeStore) MostRecent(_ context.Context) (*domain.Draft, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.recent, nil
}

func (f *fakeStore) Touch(_ context.Context, key string, _ time.Time) error {
	f.touched <- key
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	delete(f.drafts, key)
	return nil
}

func (f *fakeStore) DeleteAll(_ context.Context) error {
	f.drafts = make(map[string]*domain.Draft)
	f.recent = nil
	return nil
}

func (f *fakeStore) ListKeys(_ context.Context, _ string) ([]string, error) {
	keys := make([]string, 0, len(f.drafts))
	for k := range f.drafts {
		keys = append(keys, k)
	}
	return keys, nil
}

func TestManager_New(t *testing.T) {
	m := NewManager(newFakeStore())

	d := m.New()
	assert.Equal(t, "0", d.ContentHash)
	assert.Equal(t, DefaultQuestionCount, d.QuestionCount)
	assert.True(t, d.Empty())
}

func TestManager_Persist(t *testing.T) {
	t.Run("skips trivial drafts", func(t *testing.T) {
		store := newFakeStore()
		m := NewManager(store)

		m.Persist(context.Background(), m.New())
		m.Persist(context.Background(), nil)
		assert.Empty(t, store.drafts)
	})

	t.Run("recomputes cache key from content and urls", func(t *testing.T) {
		store := newFakeStore()
		m := NewManager(store)

		d := m.New()
		d.Content = "some content"
		d.URLs = []domain.URLRecord{{URL: "https://a.test"}}
		m.Persist(context.Background(), d)

		want := Key("some content", []string{"https://a.test"})
		assert.Equal(t, want, d.ContentHash)
		require.Contains(t, store.drafts, want)
		assert.Equal(t, len("some content"), d.Metrics.ContentLength)
	})

	t.Run("stamps timestamps, keeps created_at", func(t *testing.T) {
		store := newFakeStore()
		m := NewManager(store)
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		m.now = func() time.Time { return now }

		created := now.Add(-24 * time.Hour)
		d := &domain.Draft{Content: "text", CreatedAt: created}
		m.Persist(context.Background(), d)

		assert.Equal(t, created, d.CreatedAt)
		assert.Equal(t, now, d.LastAccessed)
	})

	t.Run("swallows store errors", func(t *testing.T) {
		store := newFakeStore()
		store.putErr = errors.New("disk full")
		m := NewManager(store)

		d := &domain.Draft{Content: "text"}
		m.Persist(context.Background(), d) // must not panic or propagate
	})
}

func TestManager_Restore(t *testing.T) {
	t.Run("fresh draft when nothing stored", func(t *testing.T) {
		m := NewManager(newFakeStore())

		d := m.Restore(context.Background())
		assert.True(t, d.Empty())
		assert.Equal(t, DefaultQuestionCount, d.QuestionCount)
	})

	t.Run("fresh draft on store failure", func(t *testing.T) {
		store := newFakeStore()
		store.recentErr = errors.New("db locked")
		m := NewManager(store)

		d := m.Restore(context.Background())
		assert.True(t, d.Empty())
	})

	t.Run("normalizes transient state", func(t *testing.T) {
		store := newFakeStore()
		store.recent = &domain.Draft{
			ContentHash: "12345",
			Content:     "restored content",
			URLs: []domain.URLRecord{
				{URL: "https://a.test", Status: domain.URLExtracting},
				{URL: "https://b.test", Status: domain.URLSuccess, Content: "extracted"},
			},
			Flags:         domain.DraftFlags{Crawling: true, Processing: true, Extracting: true},
			QuestionCount: 9,
		}
		m := NewManager(store)

		d := m.Restore(context.Background())
		assert.Equal(t, "restored content", d.Content)

		// mid-flight extraction goes back to pending, finished ones stay
		assert.Equal(t, domain.URLPending, d.URLs[0].Status)
		assert.Equal(t, domain.URLSuccess, d.URLs[1].Status)
		assert.Equal(t, "extracted", d.URLs[1].Content)

		assert.False(t, d.Flags.Crawling)
		assert.False(t, d.Flags.Processing)
		assert.False(t, d.Flags.Extracting)

		// stored batch size never survives a restore
		assert.Equal(t, DefaultQuestionCount, d.QuestionCount)
	})

	t.Run("touches the restored entry", func(t *testing.T) {
		store := newFakeStore()
		store.recent = &domain.Draft{ContentHash: "777", Content: "content"}
		m := NewManager(store)

		m.Restore(context.Background())
		select {
		case key := <-store.touched:
			assert.Equal(t, "777", key)
		case <-time.After(2 * time.Second):
			t.Fatal("expected async touch")
		}
	})
}

func TestManager_Reset(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store)

	d := &domain.Draft{Content: "old content"}
	m.Persist(context.Background(), d)
	require.NotEmpty(t, store.drafts)

	fresh := m.Reset(context.Background())
	assert.Empty(t, store.drafts)
	assert.True(t, fresh.Empty())
	assert.Equal(t, DefaultQuestionCount, fresh.QuestionCount)
}
