package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/kabini-ai/kabini/pkg/db"
	"github.com/kabini-ai/kabini/pkg/domain"
)

// DraftRepository handles draft-cache database operations. Each row is a full
// JSON snapshot of one draft keyed by its content hash; writes are pure
// overwrites, reads that fail to decode are treated as absent.
type DraftRepository struct {
	db *sqlx.DB
}

// NewDraftRepository creates a new draft repository
func NewDraftRepository(db *sqlx.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// Put stores the full draft snapshot under the given key, overwriting any
// previous snapshot. The original created_at is preserved on overwrite.
func (r *DraftRepository) Put(ctx context.Context, key string, draft *domain.Draft) error {
	snapshot, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft snapshot: %w", err)
	}

	query := `
		INSERT INTO drafts (cache_key, snapshot, created_at, last_accessed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			snapshot = excluded.snapshot,
			last_accessed = excluded.last_accessed
	`
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	return retrier.Do(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, key, string(snapshot), draft.CreatedAt, draft.LastAccessed)
		if err != nil {
			if isLockError(err) {
				return err // repeater will retry this
			}
			return &criticalError{err: fmt.Errorf("put draft: %w", err)}
		}
		return nil
	})
}

// Get retrieves a draft by key. Missing or undecodable entries return nil
// without an error, malformed scratch state must never fail the caller.
func (r *DraftRepository) Get(ctx context.Context, key string) (*domain.Draft, error) {
	var row db.Draft
	err := r.db.GetContext(ctx, &row, "SELECT * FROM drafts WHERE cache_key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return r.decode(&row), nil
}

// MostRecent returns the draft with the maximum last_accessed, or nil when
// the cache is empty or the stored entry doesn't decode.
func (r *DraftRepository) MostRecent(ctx context.Context) (*domain.Draft, error) {
	var row db.Draft
	err := r.db.GetContext(ctx, &row, "SELECT * FROM drafts ORDER BY last_accessed DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get most recent draft: %w", err)
	}
	return r.decode(&row), nil
}

// Touch updates the entry's last_accessed timestamp (LRU-style)
func (r *DraftRepository) Touch(ctx context.Context, key string, at time.Time) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	return retrier.Do(ctx, func() error {
		_, err := r.db.ExecContext(ctx, "UPDATE drafts SET last_accessed = ? WHERE cache_key = ?", at, key)
		if err != nil {
			if isLockError(err) {
				return err
			}
			return &criticalError{err: fmt.Errorf("touch draft: %w", err)}
		}
		return nil
	})
}

// Delete removes a single draft entry
func (r *DraftRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM drafts WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// DeleteAll purges every draft entry, used by the explicit "new analysis" action
func (r *DraftRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM drafts"); err != nil {
		return fmt.Errorf("delete all drafts: %w", err)
	}
	return nil
}

// DeleteOlderThan removes drafts not accessed since the cutoff, returns the
// number of removed entries
func (r *DraftRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM drafts WHERE last_accessed < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// ListKeys returns all stored cache keys with the given prefix, most recently
// accessed first. An empty prefix lists everything.
func (r *DraftRepository) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.db.SelectContext(ctx, &keys,
		"SELECT cache_key FROM drafts WHERE cache_key LIKE ? || '%' ORDER BY last_accessed DESC", prefix)
	if err != nil {
		return nil, fmt.Errorf("list draft keys: %w", err)
	}
	return keys, nil
}

// decode unmarshals a stored snapshot, treating malformed payloads as absent
func (r *DraftRepository) decode(row *db.Draft) *domain.Draft {
	var draft domain.Draft
	if err := json.Unmarshal([]byte(row.Snapshot), &draft); err != nil {
		lgr.Printf("[WARN] malformed draft snapshot for key %s: %v", row.CacheKey, err)
		return nil
	}
	draft.CreatedAt = row.CreatedAt
	draft.LastAccessed = row.LastAccessed
	return &draft
}
