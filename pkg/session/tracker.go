package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/kabini-ai/kabini/pkg/domain"
)

// Storage keys, carried over from the original client-side store
const (
	currentSessionKey = "llm_qa_current_session"
	competitorURLsKey = "llm_competitor_urls"
)

// DefaultSessionID is the id of the implicit first session
const DefaultSessionID = "default"

// Store is the persistence contract for sessions
type Store interface {
	Upsert(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	List(ctx context.Context, userID string) ([]domain.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Settings is the key-value contract for tracker pointers
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Tracker owns the session store semantics: append-or-create on question
// generation, wholesale item replacement on answer updates, and statistics
// that are always recomputed from the item list.
type Tracker struct {
	sessions Store
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	expanded map[string]bool // session ids open in the detail view
}

// NewTracker creates a session tracker
func NewTracker(sessions Store, settings Settings) *Tracker {
	return &Tracker{
		sessions: sessions,
		settings: settings,
		now:      time.Now,
		expanded: make(map[string]bool),
	}
}

// Current returns the active session, nil when none is marked current
func (t *Tracker) Current(ctx context.Context) (*domain.Session, error) {
	id, err := t.settings.GetSetting(ctx, currentSessionKey)
	if err != nil {
		return nil, fmt.Errorf("get current session pointer: %w", err)
	}
	if id == "" {
		return nil, nil
	}
	session, err := t.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get current session: %w", err)
	}
	return session, nil
}

// RecordGeneration registers newly generated questions. If a current session
// exists and its blogContent equals content exactly, the items append to it;
// otherwise a new session is created, prepended and marked current. Exact
// string equality is the intentional merge key: one session per distinct
// content, regrowing on regeneration rather than fragmenting history.
func (t *Tracker) RecordGeneration(ctx context.Context, userID, content, model string, items []domain.QAItem) (*domain.Session, error) {
	current, err := t.Current(ctx)
	if err != nil {
		return nil, err
	}

	if current != nil && current.BlogContent == content {
		current.QAData = append(current.QAData, items...)
		for _, item := range items {
			current.TotalInputTokens += item.InputTokens
			current.TotalOutputTokens += item.OutputTokens
		}
		current.RecomputeStats()
		if err := t.sessions.Upsert(ctx, current); err != nil {
			return nil, fmt.Errorf("grow current session: %w", err)
		}
		return current, nil
	}

	now := t.now()
	session := &domain.Session{
		ID:          fmt.Sprintf("session_%d", now.UnixMilli()),
		Name:        "Analysis " + now.Format("2006-01-02 15:04"),
		Type:        "content",
		Timestamp:   now,
		Model:       model,
		BlogContent: content,
		QAData:      items,
		UserID:      userID,
	}
	for _, item := range items {
		session.TotalInputTokens += item.InputTokens
		session.TotalOutputTokens += item.OutputTokens
	}
	session.RecomputeStats()

	if err := t.sessions.Upsert(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := t.settings.SetSetting(ctx, currentSessionKey, session.ID); err != nil {
		return nil, fmt.Errorf("mark session current: %w", err)
	}
	return session, nil
}

// RecordAnswers replaces the current session's item list wholesale with the
// updated draft items and recomputes statistics by summation, keeping the
// aggregates derivable from the items. No current session is a no-op.
func (t *Tracker) RecordAnswers(ctx context.Context, items []domain.QAItem) (*domain.Session, error) {
	current, err := t.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	current.QAData = items
	current.TotalInputTokens = 0
	current.TotalOutputTokens = 0
	for _, item := range items {
		current.TotalInputTokens += item.InputTokens
		current.TotalOutputTokens += item.OutputTokens
	}
	current.RecomputeStats()

	if err := t.sessions.Upsert(ctx, current); err != nil {
		return nil, fmt.Errorf("update session answers: %w", err)
	}
	return current, nil
}

// Delete removes a session after the confirmation gate passes. The session
// also leaves the expanded-view tracking. Unknown ids are a no-op.
func (t *Tracker) Delete(ctx context.Context, id string, confirm func() bool) error {
	if confirm != nil && !confirm() {
		return nil
	}

	removed, err := t.sessions.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !removed {
		return nil
	}

	t.mu.Lock()
	delete(t.expanded, id)
	t.mu.Unlock()

	// clear the current pointer if it referenced the removed session
	currentID, err := t.settings.GetSetting(ctx, currentSessionKey)
	if err != nil {
		return fmt.Errorf("get current session pointer: %w", err)
	}
	if currentID == id {
		if err := t.settings.DeleteSetting(ctx, currentSessionKey); err != nil {
			return fmt.Errorf("clear current session pointer: %w", err)
		}
	}
	return nil
}

// Expand marks a session open in the detail view
func (t *Tracker) Expand(id string) {
	t.mu.Lock()
	t.expanded[id] = true
	t.mu.Unlock()
}

// Collapse removes a session from the detail view
func (t *Tracker) Collapse(id string) {
	t.mu.Lock()
	delete(t.expanded, id)
	t.mu.Unlock()
}

// Expanded reports whether a session is open in the detail view
func (t *Tracker) Expanded(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expanded[id]
}

// List returns the user's sessions newest-first
func (t *Tracker) List(ctx context.Context, userID string) ([]domain.Session, error) {
	return t.sessions.List(ctx, userID)
}

// History flattens QA pairs across all of the user's sessions, newest
// sessions first
func (t *Tracker) History(ctx context.Context, userID string) ([]domain.HistoryEntry, error) {
	sessions, err := t.sessions.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions for history: %w", err)
	}

	var entries []domain.HistoryEntry
	for _, s := range sessions {
		for _, item := range s.QAData {
			entries = append(entries, domain.HistoryEntry{
				SessionID:   s.ID,
				SessionName: s.Name,
				Timestamp:   s.Timestamp,
				Item:        item,
			})
		}
	}
	return entries, nil
}

// Statistics is the payload for the statistics view
type Statistics struct {
	Sessions []domain.Session `json:"sessions"`
	Current  *domain.Session  `json:"current,omitempty"`
}

// Stats returns the full session list plus the current session
func (t *Tracker) Stats(ctx context.Context, userID string) (*Statistics, error) {
	sessions, err := t.sessions.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions for statistics: %w", err)
	}
	current, err := t.Current(ctx)
	if err != nil {
		return nil, err
	}
	return &Statistics{Sessions: sessions, Current: current}, nil
}

// Logout drops the current-session pointer, the sessions themselves are
// per-user records and stay
func (t *Tracker) Logout(ctx context.Context) error {
	if err := t.settings.DeleteSetting(ctx, currentSessionKey); err != nil {
		return fmt.Errorf("clear current session on logout: %w", err)
	}
	return nil
}

// SaveCompetitorURLs remembers the last-used competitor URL list
func (t *Tracker) SaveCompetitorURLs(ctx context.Context, urls []string) error {
	data, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("marshal competitor urls: %w", err)
	}
	if err := t.settings.SetSetting(ctx, competitorURLsKey, string(data)); err != nil {
		return fmt.Errorf("save competitor urls: %w", err)
	}
	return nil
}

// CompetitorURLs returns the remembered competitor URL list. Malformed stored
// state is logged and treated as absent.
func (t *Tracker) CompetitorURLs(ctx context.Context) ([]string, error) {
	value, err := t.settings.GetSetting(ctx, competitorURLsKey)
	if err != nil {
		return nil, fmt.Errorf("get competitor urls: %w", err)
	}
	if value == "" {
		return nil, nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(value), &urls); err != nil {
		lgr.Printf("[WARN] malformed competitor url list: %v", err)
		return nil, nil
	}
	return urls, nil
}
