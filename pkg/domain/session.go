package domain

import "time"

// QAItem represents one question/answer pair within a draft or session
type QAItem struct {
	Question           string  `json:"question"`
	Answer             string  `json:"answer"`
	InputTokens        int     `json:"inputTokens"`
	OutputTokens       int     `json:"outputTokens"`
	TotalTokens        int     `json:"totalTokens"`
	Cost               float64 `json:"cost"`
	Accuracy           float64 `json:"accuracy"`
	Sentiment          float64 `json:"sentiment"`
	GeoScore           float64 `json:"geoScore"`
	CitationLikelihood float64 `json:"citationLikelihood"`
	SemanticRelevance  float64 `json:"semanticRelevance"`
	VectorSimilarity   float64 `json:"vectorSimilarity"`
	Provider           string  `json:"provider"`
	Model              string  `json:"model"`
}

// Answered reports whether the item has a generated answer. Scoring an
// unanswered item is a no-op.
func (q *QAItem) Answered() bool { return q.Answer != "" }

// SessionStats holds aggregate statistics for one session, always derivable
// from its QA items
type SessionStats struct {
	TotalQuestions        int     `json:"totalQuestions"`
	AvgAccuracy           float64 `json:"avgAccuracy"`
	AvgCitationLikelihood float64 `json:"avgCitationLikelihood"`
	TotalCost             float64 `json:"totalCost"`
}

// Session represents a persisted, user-scoped analysis record
type Session struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Type              string       `json:"type"`
	Timestamp         time.Time    `json:"timestamp"`
	Model             string       `json:"model"`
	BlogContent       string       `json:"blogContent"`
	QAData            []QAItem     `json:"qaData"`
	TotalInputTokens  int          `json:"totalInputTokens"`
	TotalOutputTokens int          `json:"totalOutputTokens"`
	Statistics        SessionStats `json:"statistics"`
	UserID            string       `json:"userId"`
}

// RecomputeStats recalculates the aggregate statistics from the current item
// list. Idempotent, called after every item mutation.
func (s *Session) RecomputeStats() {
	stats := SessionStats{TotalQuestions: len(s.QAData)}
	answered := 0
	for _, item := range s.QAData {
		stats.TotalCost += item.Cost
		if item.Answered() {
			stats.AvgAccuracy += item.Accuracy
			stats.AvgCitationLikelihood += item.CitationLikelihood
			answered++
		}
	}
	if answered > 0 {
		stats.AvgAccuracy /= float64(answered)
		stats.AvgCitationLikelihood /= float64(answered)
	}
	s.Statistics = stats
}

// HistoryEntry represents one QA pair flattened across sessions for the
// history view
type HistoryEntry struct {
	SessionID   string    `json:"sessionId"`
	SessionName string    `json:"sessionName"`
	Timestamp   time.Time `json:"timestamp"`
	Item        QAItem    `json:"item"`
}
