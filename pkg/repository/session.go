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

// SessionRepository handles session-related database operations
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert inserts a session or replaces an existing one by id
func (r *SessionRepository) Upsert(ctx context.Context, session *domain.Session) error {
	row, err := r.toDBSession(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (
			id, name, type, timestamp, model, blog_content, qa_data,
			total_input_tokens, total_output_tokens, total_questions,
			avg_accuracy, avg_citation, total_cost, user_id
		) VALUES (
			:id, :name, :type, :timestamp, :model, :blog_content, :qa_data,
			:total_input_tokens, :total_output_tokens, :total_questions,
			:avg_accuracy, :avg_citation, :total_cost, :user_id
		)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			model = excluded.model,
			blog_content = excluded.blog_content,
			qa_data = excluded.qa_data,
			total_input_tokens = excluded.total_input_tokens,
			total_output_tokens = excluded.total_output_tokens,
			total_questions = excluded.total_questions,
			avg_accuracy = excluded.avg_accuracy,
			avg_citation = excluded.avg_citation,
			total_cost = excluded.total_cost,
			user_id = excluded.user_id
	`
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	return retrier.Do(ctx, func() error {
		_, err := r.db.NamedExecContext(ctx, query, row)
		if err != nil {
			if isLockError(err) {
				return err // repeater will retry this
			}
			return &criticalError{err: fmt.Errorf("upsert session: %w", err)}
		}
		return nil
	})
}

// Get retrieves a session by id, nil when not found
func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	var row db.Session
	err := r.db.GetContext(ctx, &row, "SELECT * FROM sessions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return r.toDomainSession(&row), nil
}

// List returns the user's sessions newest-first by insertion order. An empty
// userID returns all sessions.
func (r *SessionRepository) List(ctx context.Context, userID string) ([]domain.Session, error) {
	query := "SELECT * FROM sessions ORDER BY rowid DESC"
	args := []interface{}{}
	if userID != "" {
		query = "SELECT * FROM sessions WHERE user_id = ? ORDER BY rowid DESC"
		args = append(args, userID)
	}

	var rows []db.Session
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(rows))
	for i := range rows {
		if s := r.toDomainSession(&rows[i]); s != nil {
			sessions = append(sessions, *s)
		}
	}
	return sessions, nil
}

// Delete removes a session by id, reporting whether a row was removed.
// Deleting an unknown id is a no-op.
func (r *SessionRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of stored sessions
func (r *SessionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sessions"); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func (r *SessionRepository) toDBSession(s *domain.Session) (*db.Session, error) {
	qaData, err := json.Marshal(s.QAData)
	if err != nil {
		return nil, fmt.Errorf("marshal qa data: %w", err)
	}
	return &db.Session{
		ID:                s.ID,
		Name:              s.Name,
		Type:              s.Type,
		Timestamp:         s.Timestamp,
		Model:             s.Model,
		BlogContent:       s.BlogContent,
		QAData:            string(qaData),
		TotalInputTokens:  s.TotalInputTokens,
		TotalOutputTokens: s.TotalOutputTokens,
		TotalQuestions:    s.Statistics.TotalQuestions,
		AvgAccuracy:       s.Statistics.AvgAccuracy,
		AvgCitation:       s.Statistics.AvgCitationLikelihood,
		TotalCost:         s.Statistics.TotalCost,
		UserID:            s.UserID,
	}, nil
}

func (r *SessionRepository) toDomainSession(row *db.Session) *domain.Session {
	var qaData []domain.QAItem
	if err := json.Unmarshal([]byte(row.QAData), &qaData); err != nil {
		lgr.Printf("[WARN] malformed qa data for session %s: %v", row.ID, err)
		qaData = nil // session survives with an empty item list
	}
	return &domain.Session{
		ID:                row.ID,
		Name:              row.Name,
		Type:              row.Type,
		Timestamp:         row.Timestamp,
		Model:             row.Model,
		BlogContent:       row.BlogContent,
		QAData:            qaData,
		TotalInputTokens:  row.TotalInputTokens,
		TotalOutputTokens: row.TotalOutputTokens,
		Statistics: domain.SessionStats{
			TotalQuestions:        row.TotalQuestions,
			AvgAccuracy:           row.AvgAccuracy,
			AvgCitationLikelihood: row.AvgCitation,
			TotalCost:             row.TotalCost,
		},
		UserID: row.UserID,
	}
}
