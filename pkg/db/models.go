package db

import (
	"database/sql"
	"time"
)

type (
	// NullString is a type alias for sql.NullString
	NullString = sql.NullString
	// NullTime is a type alias for sql.NullTime
	NullTime = sql.NullTime
)

// Draft represents a stored draft-cache entry. The full draft snapshot is
// kept as a JSON document, the key and access times are promoted to columns
// so recency queries don't have to parse payloads.
type Draft struct {
	CacheKey     string    `db:"cache_key"`
	Snapshot     string    `db:"snapshot"`
	CreatedAt    time.Time `db:"created_at"`
	LastAccessed time.Time `db:"last_accessed"`
}

// Session represents a stored analysis session
type Session struct {
	ID                string    `db:"id"`
	Name              string    `db:"name"`
	Type              string    `db:"type"`
	Timestamp         time.Time `db:"timestamp"`
	Model             string    `db:"model"`
	BlogContent       string    `db:"blog_content"`
	QAData            string    `db:"qa_data"` // JSON array of QA items
	TotalInputTokens  int       `db:"total_input_tokens"`
	TotalOutputTokens int       `db:"total_output_tokens"`
	TotalQuestions    int       `db:"total_questions"`
	AvgAccuracy       float64   `db:"avg_accuracy"`
	AvgCitation       float64   `db:"avg_citation"`
	TotalCost         float64   `db:"total_cost"`
	UserID            string    `db:"user_id"`
	CreatedAt         time.Time `db:"created_at"`
}

// Setting represents a key-value setting row
type Setting struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}
