package content

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/markusmobius/go-trafilatura"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/kabini-ai/kabini/pkg/domain"
)

// charsPerToken is the rough character-to-token ratio used for estimates
const charsPerToken = 4

// HTTPExtractor extracts article content from URLs using trafilatura
type HTTPExtractor struct {
	timeout   time.Duration
	userAgent string
	minLength int
	client    *http.Client
	sanitizer *bluemonday.Policy
}

// NewHTTPExtractor creates a new content extractor
func NewHTTPExtractor(timeout time.Duration, userAgent string, minLength int) *HTTPExtractor {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; Kabini/1.0)"
	}
	return &HTTPExtractor{
		timeout:   timeout,
		userAgent: userAgent,
		minLength: minLength,
		client: &http.Client{
			Timeout: timeout,
		},
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// Extract retrieves and extracts text content from the given URL, with token
// and confidence estimates derived from the extracted text
func (e *HTTPExtractor) Extract(ctx context.Context, urlStr string) (*domain.ExtractResult, error) {
	// validate URL
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %s", urlStr)
	}

	// create request with context
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", e.userAgent)
	addBrowserHeaders(req)

	// fetch content
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for URL %s", resp.StatusCode, urlStr)
	}

	// configure trafilatura options
	opts := trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: true,
		ExcludeTables:   false,
		IncludeImages:   false,
		IncludeLinks:    false,
		Deduplicate:     true,
		OriginalURL:     parsedURL,
	}

	// extract content
	result, err := trafilatura.Extract(resp.Body, opts)
	if err != nil {
		return nil, fmt.Errorf("extract content from %s: %w", urlStr, err)
	}
	if result == nil {
		return nil, fmt.Errorf("no content extracted from %s", urlStr)
	}

	text := strings.TrimSpace(result.ContentText)
	if text == "" {
		return nil, fmt.Errorf("no text content extracted from %s", urlStr)
	}
	if e.minLength > 0 && len(text) < e.minLength {
		return nil, fmt.Errorf("extracted content too short (%d chars) from %s", len(text), urlStr)
	}

	return &domain.ExtractResult{
		Content:    text,
		RichHTML:   e.sanitizedHTML(result),
		Tokens:     EstimateTokens(text),
		Confidence: confidence(text),
	}, nil
}

// sanitizedHTML renders the extracted node tree to sanitized HTML, empty when
// trafilatura produced no node
func (e *HTTPExtractor) sanitizedHTML(result *trafilatura.ExtractResult) string {
	if result.ContentNode == nil {
		return ""
	}
	var buf strings.Builder
	if err := html.Render(&buf, result.ContentNode); err != nil {
		return ""
	}
	return e.sanitizer.Sanitize(buf.String())
}

// EstimateTokens approximates the token count of a text
func EstimateTokens(text string) int {
	n := len(text) / charsPerToken
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// confidence is a length-based heuristic: short extractions are likely
// boilerplate fragments, anything past ~2000 chars reads as a full article
func confidence(text string) float64 {
	c := float64(len(text)) / 2000
	if c > 1 {
		c = 1
	}
	return c
}
