package domain

// ExtractResult represents content pulled from a single URL
type ExtractResult struct {
	Content    string  `json:"content"`
	RichHTML   string  `json:"richHtml,omitempty"`
	Tokens     int     `json:"tokens"`
	Cost       float64 `json:"cost"`
	Confidence float64 `json:"confidence"`
}

// CrawlResult represents combined content from a bounded site crawl
type CrawlResult struct {
	Content    string   `json:"content"`
	TotalPages int      `json:"totalPages"`
	PageURLs   []string `json:"pageUrls,omitempty"`
}

// GeneratedQuestions represents the outcome of a question-generation call
type GeneratedQuestions struct {
	Questions    []string `json:"questions"`
	InputTokens  int      `json:"inputTokens"`
	OutputTokens int      `json:"outputTokens"`
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
}

// GeneratedAnswer represents one generated answer with its token usage
type GeneratedAnswer struct {
	Answer       string `json:"answer"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
}

// AnswerScores holds the full scoring payload for one answered question.
// Citation likelihood and accuracy come from independent scoring calls, geo
// score and vector similarity are computed from their results.
type AnswerScores struct {
	Accuracy           float64 `json:"accuracy"`
	CitationLikelihood float64 `json:"citationLikelihood"`
	Sentiment          float64 `json:"sentiment"`
	GeoScore           float64 `json:"geoScore"`
	SemanticRelevance  float64 `json:"semanticRelevance"`
	VectorSimilarity   float64 `json:"vectorSimilarity"`
}
