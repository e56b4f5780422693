package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabini-ai/kabini/pkg/content"
	"github.com/kabini-ai/kabini/pkg/domain"
	"github.com/kabini-ai/kabini/pkg/session"
)

// fakeAnalysis records calls and serves a mutable draft
type fakeAnalysis struct {
	draft     domain.Draft
	crawlOpts content.CrawlOptions
	genErr    error
}

func (f *fakeAnalysis) Snapshot() domain.Draft { return f.draft }

func (f *fakeAnalysis) SetContent(_ context.Context, text string) domain.Draft {
	f.draft.Content = text
	return f.draft
}

func (f *fakeAnalysis) SetProviders(_ context.Context, question, answer domain.ProviderSelection) domain.Draft {
	f.draft.QuestionProvider = question
	f.draft.AnswerProvider = answer
	return f.draft
}

func (f *fakeAnalysis) SetQuestionCount(_ context.Context, count int) domain.Draft {
	f.draft.QuestionCount = count
	return f.draft
}

func (f *fakeAnalysis) AddURL(_ context.Context, url string) (domain.Draft, error) {
	for _, u := range f.draft.URLs {
		if u.URL == url {
			return f.draft, fmt.Errorf("url already added: %s", url)
		}
	}
	f.draft.URLs = append(f.draft.URLs, domain.URLRecord{URL: url, Status: domain.URLPending})
	return f.draft, nil
}

func (f *fakeAnalysis) RemoveURL(_ context.Context, index int) (domain.Draft, error) {
	if index < 0 || index >= len(f.draft.URLs) {
		return f.draft, fmt.Errorf("url index %d out of range", index)
	}
	f.draft.URLs = append(f.draft.URLs[:index], f.draft.URLs[index+1:]...)
	return f.draft, nil
}

func (f *fakeAnalysis) ExtractURL(_ context.Context, index int) (domain.Draft, error) {
	if index < 0 || index >= len(f.draft.URLs) {
		return f.draft, fmt.Errorf("url index %d out of range", index)
	}
	f.draft.URLs[index].Status = domain.URLSuccess
	return f.draft, nil
}

func (f *fakeAnalysis) Crawl(_ context.Context, _ string, opts content.CrawlOptions) (domain.Draft, error) {
	f.crawlOpts = opts
	f.draft.Content = "crawled content"
	return f.draft, nil
}

func (f *fakeAnalysis) GenerateQuestions(_ context.Context, count int) (domain.Draft, error) {
	if f.genErr != nil {
		return f.draft, f.genErr
	}
	for i := 0; i < count; i++ {
		f.draft.QAItems = append(f.draft.QAItems, domain.QAItem{Question: fmt.Sprintf("Q%d?", i+1)})
	}
	return f.draft, nil
}

func (f *fakeAnalysis) GenerateAnswers(_ context.Context, indexes []int) (domain.Draft, error) {
	for _, idx := range indexes {
		if idx >= 0 && idx < len(f.draft.QAItems) {
			f.draft.QAItems[idx].Answer = "answered"
		}
	}
	return f.draft, nil
}

func (f *fakeAnalysis) NewAnalysis(_ context.Context) domain.Draft {
	f.draft = domain.Draft{ContentHash: "0", QuestionCount: 5}
	return f.draft
}

// fakeSessions is a minimal Sessions implementation
type fakeSessions struct {
	sessions    []domain.Session
	deleted     []string
	expanded    map[string]bool
	competitors []string
	loggedOut   bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{expanded: map[string]bool{}}
}

func (f *fakeSessions) List(_ context.Context, _ string) ([]domain.Session, error) {
	return f.sessions, nil
}

func (f *fakeSessions) Delete(_ context.Context, id string, confirm func() bool) error {
	if confirm != nil && !confirm() {
		return nil
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSessions) Expand(id string)   { f.expanded[id] = true }
func (f *fakeSessions) Collapse(id string) { delete(f.expanded, id) }

func (f *fakeSessions) History(_ context.Context, _ string) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	for _, s := range f.sessions {
		for _, item := range s.QAData {
			entries = append(entries, domain.HistoryEntry{SessionID: s.ID, SessionName: s.Name, Item: item})
		}
	}
	return entries, nil
}

func (f *fakeSessions) Stats(_ context.Context, _ string) (*session.Statistics, error) {
	return &session.Statistics{Sessions: f.sessions}, nil
}

func (f *fakeSessions) Export(_ context.Context, id string) (string, string, error) {
	for _, s := range f.sessions {
		if s.ID == id {
			return "analysis-export.txt", "Session: " + s.Name + "\n", nil
		}
	}
	return "", "", fmt.Errorf("session %s not found", id)
}

func (f *fakeSessions) Logout(_ context.Context) error {
	f.loggedOut = true
	return nil
}

func (f *fakeSessions) SaveCompetitorURLs(_ context.Context, urls []string) error {
	f.competitors = urls
	return nil
}

func (f *fakeSessions) CompetitorURLs(_ context.Context) ([]string, error) {
	return f.competitors, nil
}

type fakeConfig struct{}

func (f *fakeConfig) GetServerConfig() (string, time.Duration) { return ":0", 30 * time.Second }

func newTestServer(t *testing.T) (*httptest.Server, *fakeAnalysis, *fakeSessions) {
	t.Helper()
	analysis := &fakeAnalysis{draft: domain.Draft{ContentHash: "0", QuestionCount: 5}}
	sessions := newFakeSessions()
	srv := New(&fakeConfig{}, analysis, sessions, "test", false)

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts, analysis, sessions
}

func decodeDraft(t *testing.T, body io.Reader) domain.Draft {
	t.Helper()
	var d domain.Draft
	require.NoError(t, json.NewDecoder(body).Decode(&d))
	return d
}

func TestServer_Status(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "test", status["version"])
}

func TestServer_Draft(t *testing.T) {
	ts, _, _ := newTestServer(t)

	t.Run("get draft", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/draft")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		d := decodeDraft(t, resp.Body)
		assert.Equal(t, "0", d.ContentHash)
		assert.Equal(t, 5, d.QuestionCount)
	})

	t.Run("set content", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/draft/content", "application/json",
			strings.NewReader(`{"content":"new blog text"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "new blog text", decodeDraft(t, resp.Body).Content)
	})

	t.Run("set content with bad body", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/draft/content", "application/json",
			strings.NewReader(`{broken`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("set providers", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/draft/providers", "application/json",
			strings.NewReader(`{"question":{"provider":"openai","model":"gpt-4o"},"answer":{"provider":"openai","model":"gpt-4o-mini"}}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		d := decodeDraft(t, resp.Body)
		assert.Equal(t, "gpt-4o", d.QuestionProvider.Model)
		assert.Equal(t, "gpt-4o-mini", d.AnswerProvider.Model)
	})

	t.Run("question count bounds", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/draft/question-count", "application/json",
			strings.NewReader(`{"count":7}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 7, decodeDraft(t, resp.Body).QuestionCount)

		resp, err = http.Post(ts.URL+"/api/v1/draft/question-count", "application/json",
			strings.NewReader(`{"count":11}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_URLs(t *testing.T) {
	ts, analysis, _ := newTestServer(t)

	t.Run("add url", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/draft/urls", "application/json",
			strings.NewReader(`{"url":"https://a.test"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		d := decodeDraft(t, resp.Body)
		require.Len(t, d.URLs, 1)
		assert.Equal(t, domain.URLPending, d.URLs[0].Status)
	})

	t.Run("duplicate url rejected", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/draft/urls", "application/json",
			strings.NewReader(`{"url":"https://a.test"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing url rejected", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/draft/urls", "application/json",
			strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("extract url", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/draft/urls/0/extract", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		d := decodeDraft(t, resp.Body)
		assert.Equal(t, domain.URLSuccess, d.URLs[0].Status)
	})

	t.Run("remove url bad index", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/draft/urls/abc", http.NoBody)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("remove url", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/draft/urls/0", http.NoBody)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, decodeDraft(t, resp.Body).URLs)
		assert.Empty(t, analysis.draft.URLs)
	})
}

func TestServer_Crawl(t *testing.T) {
	ts, analysis, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/draft/crawl", "application/json",
		strings.NewReader(`{"url":"https://site.test","maxPages":5,"maxDepth":3,"timeoutMs":5000}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "crawled content", decodeDraft(t, resp.Body).Content)
	assert.Equal(t, 5, analysis.crawlOpts.MaxPages)
	assert.Equal(t, 3, analysis.crawlOpts.MaxDepth)
	assert.Equal(t, 5*time.Second, analysis.crawlOpts.Timeout)
}

func TestServer_Analysis(t *testing.T) {
	ts, _, _ := newTestServer(t)

	t.Run("generate questions", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/analysis/questions", "application/json",
			strings.NewReader(`{"count":3}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, decodeDraft(t, resp.Body).QAItems, 3)
	})

	t.Run("generate answers for selected items", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/analysis/answers", "application/json",
			strings.NewReader(`{"indexes":[0]}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		d := decodeDraft(t, resp.Body)
		assert.Equal(t, "answered", d.QAItems[0].Answer)
		assert.Empty(t, d.QAItems[1].Answer)
	})

	t.Run("new analysis resets", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/analysis/new", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		d := decodeDraft(t, resp.Body)
		assert.Empty(t, d.QAItems)
		assert.Equal(t, "0", d.ContentHash)
	})

	t.Run("generation failure returns 502", func(t *testing.T) {
		ts2, analysis2, _ := newTestServer(t)
		analysis2.genErr = fmt.Errorf("no content to analyze")

		resp, err := http.Post(ts2.URL+"/api/v1/analysis/questions", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestServer_Sessions(t *testing.T) {
	ts, _, sessions := newTestServer(t)
	sessions.sessions = []domain.Session{
		{ID: "session_2", Name: "Analysis Two", QAData: []domain.QAItem{{Question: "Q?"}}},
		{ID: "session_1", Name: "Analysis One"},
	}

	t.Run("list", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/sessions")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var list []domain.Session
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		require.Len(t, list, 2)
		assert.Equal(t, "session_2", list[0].ID)
	})

	t.Run("delete requires confirmation", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/sessions/session_1", http.NoBody)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, sessions.deleted)
	})

	t.Run("confirmed delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/sessions/session_1?confirm=true", http.NoBody)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []string{"session_1"}, sessions.deleted)
	})

	t.Run("expand and collapse", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/sessions/session_2/expand", "application/json", http.NoBody)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.True(t, sessions.expanded["session_2"])

		resp, err = http.Post(ts.URL+"/api/v1/sessions/session_2/collapse", "application/json", http.NoBody)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.False(t, sessions.expanded["session_2"])
	})

	t.Run("export", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/sessions/session_2/export")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "analysis-export.txt")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "Session: Analysis Two")
	})

	t.Run("export unknown session", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/sessions/nope/export")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("history", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/history")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var entries []domain.HistoryEntry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "session_2", entries[0].SessionID)
	})

	t.Run("statistics", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/statistics")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var stats session.Statistics
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		assert.Len(t, stats.Sessions, 2)
	})
}

func TestServer_Competitors(t *testing.T) {
	ts, _, sessions := newTestServer(t)

	t.Run("empty list is an empty array", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/competitors")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "[]", strings.TrimSpace(string(body)))
	})

	t.Run("save and read back", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/competitors",
			strings.NewReader(`["https://rival.test"]`))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, []string{"https://rival.test"}, sessions.competitors)

		getResp, err := http.Get(ts.URL + "/api/v1/competitors")
		require.NoError(t, err)
		defer getResp.Body.Close()
		var urls []string
		require.NoError(t, json.NewDecoder(getResp.Body).Decode(&urls))
		assert.Equal(t, []string{"https://rival.test"}, urls)
	})
}

func TestServer_Logout(t *testing.T) {
	ts, _, sessions := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/logout", "application/json", http.NoBody)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, sessions.loggedOut)
}

func TestServer_Ping(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", strings.TrimSpace(string(body)))
}
