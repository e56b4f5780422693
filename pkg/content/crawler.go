package content

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-pkgz/lgr"
	"github.com/mmcdole/gofeed"

	"github.com/kabini-ai/kabini/pkg/domain"
)

// CrawlOptions bound a site crawl
type CrawlOptions struct {
	MaxPages int
	MaxDepth int
	Timeout  time.Duration
}

// Crawler walks a site within page, depth and time bounds and combines the
// extracted text of every visited page. When the site advertises an RSS/Atom
// feed the crawl seeds from the feed's item links instead of walking anchors.
type Crawler struct {
	extractor *HTTPExtractor
	client    *http.Client
	userAgent string
}

// NewCrawler creates a crawler sharing the given extractor
func NewCrawler(extractor *HTTPExtractor, userAgent string) *Crawler {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; Kabini/1.0)"
	}
	return &Crawler{
		extractor: extractor,
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: userAgent,
	}
}

// Crawl visits up to opts.MaxPages same-host pages starting at startURL and
// returns their combined extracted content. Individual page failures are
// logged and skipped, the crawl continues.
func (c *Crawler) Crawl(ctx context.Context, startURL string, opts CrawlOptions) (*domain.CrawlResult, error) {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 2
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	base, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("parse start URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid start URL: %s", startURL)
	}

	pages := c.collectPages(ctx, base, opts)

	var sb strings.Builder
	var visited []string
	for _, page := range pages {
		if ctx.Err() != nil {
			break
		}
		res, err := c.extractor.Extract(ctx, page)
		if err != nil {
			lgr.Printf("[WARN] crawl skip %s: %v", page, err)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(res.Content)
		visited = append(visited, page)
	}

	if len(visited) == 0 {
		return nil, fmt.Errorf("no pages extracted from %s", startURL)
	}

	return &domain.CrawlResult{
		Content:    sb.String(),
		TotalPages: len(visited),
		PageURLs:   visited,
	}, nil
}

// collectPages enumerates candidate page URLs, preferring a discovered feed
// and falling back to a bounded BFS over same-host anchors
func (c *Crawler) collectPages(ctx context.Context, base *url.URL, opts CrawlOptions) []string {
	if fromFeed := c.pagesFromFeed(ctx, base, opts.MaxPages); len(fromFeed) > 0 {
		lgr.Printf("[DEBUG] crawl seeded from feed: %d pages for %s", len(fromFeed), base)
		return fromFeed
	}
	return c.pagesFromLinks(ctx, base, opts)
}

// pagesFromFeed discovers an RSS/Atom feed advertised on the start page and
// takes its item links, start page first
func (c *Crawler) pagesFromFeed(ctx context.Context, base *url.URL, maxPages int) []string {
	doc, err := c.fetchDocument(ctx, base.String())
	if err != nil {
		return nil
	}

	var feedURL string
	doc.Find(`link[type="application/rss+xml"], link[type="application/atom+xml"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if href, ok := s.Attr("href"); ok {
			if resolved, err := base.Parse(href); err == nil {
				feedURL = resolved.String()
				return false
			}
		}
		return true
	})
	if feedURL == "" {
		return nil
	}

	parser := gofeed.NewParser()
	parser.UserAgent = c.userAgent
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		lgr.Printf("[DEBUG] feed parse failed for %s: %v", feedURL, err)
		return nil
	}

	pages := []string{base.String()}
	for _, item := range feed.Items {
		if len(pages) >= maxPages {
			break
		}
		if item.Link != "" {
			pages = append(pages, item.Link)
		}
	}
	return pages
}

// pagesFromLinks does a breadth-first walk of same-host anchors
func (c *Crawler) pagesFromLinks(ctx context.Context, base *url.URL, opts CrawlOptions) []string {
	type queued struct {
		url   string
		depth int
	}

	seen := map[string]bool{base.String(): true}
	pages := []string{base.String()}
	queue := []queued{{url: base.String(), depth: 0}}

	for len(queue) > 0 && len(pages) < opts.MaxPages {
		if ctx.Err() != nil {
			break
		}
		next := queue[0]
		queue = queue[1:]
		if next.depth >= opts.MaxDepth {
			continue
		}

		doc, err := c.fetchDocument(ctx, next.url)
		if err != nil {
			lgr.Printf("[DEBUG] crawl fetch failed for %s: %v", next.url, err)
			continue
		}

		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if len(pages) >= opts.MaxPages {
				return false
			}
			href, ok := s.Attr("href")
			if !ok {
				return true
			}
			resolved, err := base.Parse(href)
			if err != nil || resolved.Host != base.Host {
				return true
			}
			resolved.Fragment = ""
			link := resolved.String()
			if seen[link] {
				return true
			}
			seen[link] = true
			pages = append(pages, link)
			queue = append(queue, queued{url: link, depth: next.depth + 1})
			return true
		})
	}

	return pages
}

func (c *Crawler) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	addBrowserHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}
