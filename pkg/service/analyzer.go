package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-pkgz/lgr"

	"github.com/kabini-ai/kabini/pkg/content"
	"github.com/kabini-ai/kabini/pkg/domain"
	"github.com/kabini-ai/kabini/pkg/draft"
	"github.com/kabini-ai/kabini/pkg/llm"
	"github.com/kabini-ai/kabini/pkg/session"
)

// Extractor pulls text content from a single URL
type Extractor interface {
	Extract(ctx context.Context, url string) (*domain.ExtractResult, error)
}

// Crawler walks a site within bounds and combines page content
type Crawler interface {
	Crawl(ctx context.Context, url string, opts content.CrawlOptions) (*domain.CrawlResult, error)
}

// Generator produces questions and answers via the LLM
type Generator interface {
	GenerateQuestions(ctx context.Context, req llm.QuestionRequest) (*domain.GeneratedQuestions, error)
	GenerateAnswer(ctx context.Context, content, question, provider, model string) (*domain.GeneratedAnswer, error)
}

// Scorer computes the full score set for an answered question
type Scorer interface {
	Score(ctx context.Context, answer, content, provider, model string) (*domain.AnswerScores, error)
}

// Pricer estimates dollar cost from token usage
type Pricer interface {
	Cost(provider, model string, inputTokens, outputTokens int) float64
}

// Analyzer owns the working draft state and orchestrates the analysis flow:
// extraction and crawling feed the draft, question generation commits items
// to the session store, answer generation updates them in place. All draft
// mutations go through the analyzer's lock, concurrent completions merge by
// index against the latest state instead of replacing the whole list from a
// stale copy.
type Analyzer struct {
	drafts    *draft.Manager
	sessions  *session.Tracker
	extractor Extractor
	crawler   Crawler
	generator Generator
	scorer    Scorer
	pricer    Pricer
	crawlOpts content.CrawlOptions

	mu      sync.Mutex
	working *domain.Draft
	userID  string
}

// Config bundles the analyzer dependencies
type Config struct {
	Drafts    *draft.Manager
	Sessions  *session.Tracker
	Extractor Extractor
	Crawler   Crawler
	Generator Generator
	Scorer    Scorer
	Pricer    Pricer
	CrawlOpts content.CrawlOptions
	UserID    string
}

// NewAnalyzer creates the analyzer and restores the most recent draft
func NewAnalyzer(ctx context.Context, cfg Config) *Analyzer {
	a := &Analyzer{
		drafts:    cfg.Drafts,
		sessions:  cfg.Sessions,
		extractor: cfg.Extractor,
		crawler:   cfg.Crawler,
		generator: cfg.Generator,
		scorer:    cfg.Scorer,
		pricer:    cfg.Pricer,
		crawlOpts: cfg.CrawlOpts,
		userID:    cfg.UserID,
	}
	a.working = cfg.Drafts.Restore(ctx)
	if !a.working.Empty() {
		lgr.Printf("[INFO] restored draft %s: %d chars, %d urls, %d qa items",
			a.working.ContentHash, len(a.working.Content), len(a.working.URLs), len(a.working.QAItems))
	}
	return a
}

// Snapshot returns a copy of the current working draft
func (a *Analyzer) Snapshot() domain.Draft {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyWorking()
}

// SetContent replaces the draft's content text
func (a *Analyzer) SetContent(ctx context.Context, text string) domain.Draft {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.working.Content = text
	a.working.Metrics.Tokens = content.EstimateTokens(text)
	a.persistLocked(ctx)
	return a.copyWorking()
}

// SetProviders updates the question/answer provider selections
func (a *Analyzer) SetProviders(ctx context.Context, question, answer domain.ProviderSelection) domain.Draft {
	a.mu.Lock()
	defer a.mu.Unlock()
	if question.Provider != "" || question.Model != "" {
		a.working.QuestionProvider = question
	}
	if answer.Provider != "" || answer.Model != "" {
		a.working.AnswerProvider = answer
	}
	a.persistLocked(ctx)
	return a.copyWorking()
}

// SetQuestionCount sets the batch size for the next generation, clamped to
// [1, 10]
func (a *Analyzer) SetQuestionCount(ctx context.Context, count int) domain.Draft {
	if count < 1 {
		count = 1
	}
	if count > 10 {
		count = 10
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.working.QuestionCount = count
	a.persistLocked(ctx)
	return a.copyWorking()
}

// AddURL appends a source URL in the pending state. Duplicates within the
// draft are rejected.
func (a *Analyzer) AddURL(ctx context.Context, url string) (domain.Draft, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, u := range a.working.URLs {
		if u.URL == url {
			return a.copyWorking(), fmt.Errorf("url already added: %s", url)
		}
	}
	a.working.URLs = append(a.working.URLs, domain.URLRecord{URL: url, Status: domain.URLPending})
	a.persistLocked(ctx)
	return a.copyWorking(), nil
}

// RemoveURL removes the URL at the given index, preserving order of the rest
func (a *Analyzer) RemoveURL(ctx context.Context, index int) (domain.Draft, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index < 0 || index >= len(a.working.URLs) {
		return a.copyWorking(), fmt.Errorf("url index %d out of range", index)
	}
	a.working.URLs = append(a.working.URLs[:index], a.working.URLs[index+1:]...)
	a.persistLocked(ctx)
	return a.copyWorking(), nil
}

// ExtractURL runs content extraction for the URL at the given index. The
// record moves pending -> extracting -> success or error; the failure path
// always clears the in-flight state before returning.
func (a *Analyzer) ExtractURL(ctx context.Context, index int) (domain.Draft, error) {
	a.mu.Lock()
	if index < 0 || index >= len(a.working.URLs) {
		d := a.copyWorking()
		a.mu.Unlock()
		return d, fmt.Errorf("url index %d out of range", index)
	}
	url := a.working.URLs[index].URL
	a.working.URLs[index].Status = domain.URLExtracting
	a.working.Flags.Extracting = true
	a.persistLocked(ctx)
	a.mu.Unlock()

	res, err := a.extractor.Extract(ctx, url)

	// merge by URL against the latest list, the index may have shifted while
	// the network call was in flight
	a.mu.Lock()
	defer a.mu.Unlock()
	a.working.Flags.Extracting = false
	pos := a.findURLLocked(url)
	if pos < 0 {
		// removed mid-flight, nothing to record
		a.persistLocked(ctx)
		return a.copyWorking(), nil
	}
	if err != nil {
		lgr.Printf("[WARN] extraction failed for %s: %v", url, err)
		a.working.URLs[pos].Status = domain.URLError
		a.working.URLs[pos].Error = err.Error()
		a.persistLocked(ctx)
		return a.copyWorking(), nil // url-level errors render inline, not as request failures
	}

	cost := a.pricer.Cost(a.working.AnswerProvider.Provider, a.working.AnswerProvider.Model, res.Tokens, 0)
	a.working.URLs[pos] = domain.URLRecord{
		URL:        url,
		Content:    res.Content,
		Status:     domain.URLSuccess,
		Tokens:     res.Tokens,
		Cost:       cost,
		Confidence: res.Confidence,
	}
	a.persistLocked(ctx)
	return a.copyWorking(), nil
}

// Crawl combines content from a bounded site crawl into the draft content.
// The crawling flag is in-flight state only and never survives a restart.
func (a *Analyzer) Crawl(ctx context.Context, url string, opts content.CrawlOptions) (domain.Draft, error) {
	if opts.MaxPages <= 0 {
		opts.MaxPages = a.crawlOpts.MaxPages
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = a.crawlOpts.MaxDepth
	}
	if opts.Timeout <= 0 {
		opts.Timeout = a.crawlOpts.Timeout
	}

	a.mu.Lock()
	a.working.Flags.Crawling = true
	a.persistLocked(ctx)
	a.mu.Unlock()

	res, err := a.crawler.Crawl(ctx, url, opts)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.working.Flags.Crawling = false
	if err != nil {
		a.persistLocked(ctx)
		return a.copyWorking(), fmt.Errorf("crawl %s: %w", url, err)
	}
	a.working.Content = res.Content
	a.working.Metrics.Tokens = content.EstimateTokens(res.Content)
	a.persistLocked(ctx)
	lgr.Printf("[INFO] crawl of %s combined %d pages", url, res.TotalPages)
	return a.copyWorking(), nil
}

// GenerateQuestions generates questions for the draft content and commits
// them to the session store, appending to the current session when the
// content matches it exactly and creating a new session otherwise
func (a *Analyzer) GenerateQuestions(ctx context.Context, count int) (domain.Draft, error) {
	a.mu.Lock()
	text := a.analysisContentLocked()
	if text == "" {
		a.mu.Unlock()
		return a.Snapshot(), fmt.Errorf("no content to analyze")
	}
	if count < 1 {
		count = a.working.QuestionCount
	}
	provider := a.working.QuestionProvider
	a.working.Flags.Processing = true
	a.persistLocked(ctx)
	a.mu.Unlock()

	generated, err := a.generator.GenerateQuestions(ctx, llm.QuestionRequest{
		Content:  text,
		Count:    count,
		Provider: provider.Provider,
		Model:    provider.Model,
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	a.working.Flags.Processing = false
	if err != nil {
		a.persistLocked(ctx)
		return a.copyWorking(), fmt.Errorf("generate questions: %w", err)
	}

	// token usage is attributed to the first item of the batch, matching how
	// the statistics view reports per-generation usage
	items := make([]domain.QAItem, len(generated.Questions))
	for i, q := range generated.Questions {
		items[i] = domain.QAItem{
			Question: q,
			Provider: generated.Provider,
			Model:    generated.Model,
		}
	}
	if len(items) > 0 {
		items[0].InputTokens = generated.InputTokens
		items[0].OutputTokens = generated.OutputTokens
		items[0].TotalTokens = generated.InputTokens + generated.OutputTokens
	}

	a.working.QAItems = append(a.working.QAItems, items...)
	a.persistLocked(ctx)

	if _, err := a.sessions.RecordGeneration(ctx, a.userID, text, generated.Model, items); err != nil {
		lgr.Printf("[WARN] failed to record generation in session store: %v", err)
	}
	return a.copyWorking(), nil
}

// GenerateAnswers generates and scores answers for the QA items at the given
// indexes, one at a time. A failing item is logged and skipped, the batch
// continues; each item's failure is independent.
func (a *Analyzer) GenerateAnswers(ctx context.Context, indexes []int) (domain.Draft, error) {
	a.mu.Lock()
	text := a.analysisContentLocked()
	provider := a.working.AnswerProvider
	total := len(a.working.QAItems)
	a.mu.Unlock()

	if text == "" {
		return a.Snapshot(), fmt.Errorf("no content to answer from")
	}
	if len(indexes) == 0 {
		for i := 0; i < total; i++ {
			indexes = append(indexes, i)
		}
	}

	for _, idx := range indexes {
		if err := a.answerOne(ctx, idx, text, provider); err != nil {
			lgr.Printf("[WARN] answer generation failed for item %d: %v", idx, err)
			continue
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.sessions.RecordAnswers(ctx, append([]domain.QAItem(nil), a.working.QAItems...)); err != nil {
		lgr.Printf("[WARN] failed to sync session answers: %v", err)
	}
	return a.copyWorking(), nil
}

// answerOne generates one answer and its scores, then merges the result by
// index into the latest item list
func (a *Analyzer) answerOne(ctx context.Context, idx int, text string, provider domain.ProviderSelection) error {
	a.mu.Lock()
	if idx < 0 || idx >= len(a.working.QAItems) {
		a.mu.Unlock()
		return fmt.Errorf("qa index %d out of range", idx)
	}
	question := a.working.QAItems[idx].Question
	a.mu.Unlock()

	answer, err := a.generator.GenerateAnswer(ctx, text, question, provider.Provider, provider.Model)
	if err != nil {
		return fmt.Errorf("generate answer: %w", err)
	}

	scores, err := a.scorer.Score(ctx, answer.Answer, text, provider.Provider, provider.Model)
	if err != nil {
		// keep the answer, scores stay zero until a rescore
		lgr.Printf("[WARN] scoring failed for item %d: %v", idx, err)
		scores = &domain.AnswerScores{}
	}

	cost := a.pricer.Cost(provider.Provider, provider.Model, answer.InputTokens, answer.OutputTokens)

	a.mu.Lock()
	defer a.mu.Unlock()
	if idx >= len(a.working.QAItems) || a.working.QAItems[idx].Question != question {
		return fmt.Errorf("qa item %d changed mid-flight", idx)
	}
	item := &a.working.QAItems[idx]
	item.Answer = answer.Answer
	item.InputTokens = answer.InputTokens
	item.OutputTokens = answer.OutputTokens
	item.TotalTokens = answer.InputTokens + answer.OutputTokens
	item.Cost = cost
	item.Accuracy = scores.Accuracy
	item.Sentiment = scores.Sentiment
	item.GeoScore = scores.GeoScore
	item.CitationLikelihood = scores.CitationLikelihood
	item.SemanticRelevance = scores.SemanticRelevance
	item.VectorSimilarity = scores.VectorSimilarity
	item.Provider = provider.Provider
	item.Model = provider.Model
	a.persistLocked(ctx)
	return nil
}

// NewAnalysis purges the draft cache and resets the working state to its
// documented defaults
func (a *Analyzer) NewAnalysis(ctx context.Context) domain.Draft {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.working = a.drafts.Reset(ctx)
	return a.copyWorking()
}

// analysisContentLocked returns the text to analyze: the draft content, or
// the successful URL extractions joined when no content was entered directly
func (a *Analyzer) analysisContentLocked() string {
	if a.working.Content != "" {
		return a.working.Content
	}
	var parts []string
	for _, u := range a.working.URLs {
		if u.Status == domain.URLSuccess && u.Content != "" {
			parts = append(parts, u.Content)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	combined := parts[0]
	for _, p := range parts[1:] {
		combined += "\n\n" + p
	}
	return combined
}

func (a *Analyzer) findURLLocked(url string) int {
	for i, u := range a.working.URLs {
		if u.URL == url {
			return i
		}
	}
	return -1
}

func (a *Analyzer) persistLocked(ctx context.Context) {
	a.drafts.Persist(ctx, a.working)
}

func (a *Analyzer) copyWorking() domain.Draft {
	d := *a.working
	d.URLs = append([]domain.URLRecord(nil), a.working.URLs...)
	d.QAItems = append([]domain.QAItem(nil), a.working.QAItems...)
	return d
}
