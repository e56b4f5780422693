package domain

import "time"

// URLStatus represents the extraction state of a source URL
type URLStatus string

// URL extraction states, transitions flow pending -> extracting -> {success, error}
const (
	URLPending    URLStatus = "pending"
	URLExtracting URLStatus = "extracting"
	URLSuccess    URLStatus = "success"
	URLError      URLStatus = "error"
)

// URLRecord represents one user-submitted source URL within a draft
type URLRecord struct {
	URL        string    `json:"url"`
	Content    string    `json:"content"`
	Status     URLStatus `json:"status"`
	Tokens     int       `json:"tokens"`
	Cost       float64   `json:"cost"`
	Confidence float64   `json:"confidence"`
	Error      string    `json:"error,omitempty"`
}

// ProviderSelection represents a provider/model pair chosen for a generation step
type ProviderSelection struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// DraftMetrics holds derived estimates for the draft's content
type DraftMetrics struct {
	Tokens        int     `json:"tokens"`
	Cost          float64 `json:"cost"`
	Confidence    float64 `json:"confidence"`
	ContentLength int     `json:"contentLength"`
}

// DraftFlags tracks in-flight operations on the draft. None of the flags
// survives a restart: a restore normalizes extracting URL records back to
// pending and forces crawling/processing off.
type DraftFlags struct {
	Extracting bool `json:"extracting"`
	Crawling   bool `json:"crawling"`
	Processing bool `json:"processing"`
}

// Draft represents one in-progress content analysis snapshot
type Draft struct {
	ContentHash      string            `json:"contentHash"`
	Content          string            `json:"content"`
	URLs             []URLRecord       `json:"urls,omitempty"`
	QAItems          []QAItem          `json:"qaItems,omitempty"`
	QuestionProvider ProviderSelection `json:"questionProvider"`
	AnswerProvider   ProviderSelection `json:"answerProvider"`
	Metrics          DraftMetrics      `json:"metrics"`
	Flags            DraftFlags        `json:"flags"`
	QuestionCount    int               `json:"questionCount"`
	CreatedAt        time.Time         `json:"createdAt"`
	LastAccessed     time.Time         `json:"lastAccessed"`
}

// Empty reports whether the draft carries no user state worth persisting
func (d *Draft) Empty() bool {
	return d.Content == "" && len(d.URLs) == 0 && len(d.QAItems) == 0
}
