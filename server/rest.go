package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kabini-ai/kabini/pkg/content"
	"github.com/kabini-ai/kabini/pkg/domain"
)

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}
	renderJSON(w, r, http.StatusOK, status)
}

// draftHandler returns the current working draft
func (s *Server) draftHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, r, http.StatusOK, s.analysis.Snapshot())
}

// setContentHandler replaces the draft content text
func (s *Server) setContentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}
	renderJSON(w, r, http.StatusOK, s.analysis.SetContent(r.Context(), req.Content))
}

// setProvidersHandler updates the provider/model selections
func (s *Server) setProvidersHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question domain.ProviderSelection `json:"question"`
		Answer   domain.ProviderSelection `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}
	renderJSON(w, r, http.StatusOK, s.analysis.SetProviders(r.Context(), req.Question, req.Answer))
}

// setQuestionCountHandler sets the batch size for the next generation
func (s *Server) setQuestionCountHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}
	if req.Count < 1 || req.Count > 10 {
		renderError(w, r, fmt.Errorf("question count must be between 1 and 10"), http.StatusBadRequest)
		return
	}
	renderJSON(w, r, http.StatusOK, s.analysis.SetQuestionCount(r.Context(), req.Count))
}

// addURLHandler appends a source URL to the draft
func (s *Server) addURLHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		renderError(w, r, fmt.Errorf("url is required"), http.StatusBadRequest)
		return
	}
	draft, err := s.analysis.AddURL(r.Context(), req.URL)
	if err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	renderJSON(w, r, http.StatusOK, draft)
}

// removeURLHandler removes the URL at the given index
func (s *Server) removeURLHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		renderError(w, r, fmt.Errorf("invalid url index"), http.StatusBadRequest)
		return
	}
	draft, err := s.analysis.RemoveURL(r.Context(), index)
	if err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	renderJSON(w, r, http.StatusOK, draft)
}

// extractURLHandler triggers content extraction for one URL. Extraction
// failures come back as part of the draft (url-level status/error), not as a
// request error.
func (s *Server) extractURLHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		renderError(w, r, fmt.Errorf("invalid url index"), http.StatusBadRequest)
		return
	}
	draft, err := s.analysis.ExtractURL(r.Context(), index)
	if err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	renderJSON(w, r, http.StatusOK, draft)
}

// crawlHandler runs a bounded site crawl into the draft content
func (s *Server) crawlHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL       string `json:"url"`
		MaxPages  int    `json:"maxPages"`
		MaxDepth  int    `json:"maxDepth"`
		TimeoutMs int    `json:"timeoutMs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		renderError(w, r, fmt.Errorf("url is required"), http.StatusBadRequest)
		return
	}

	draft, err := s.analysis.Crawl(r.Context(), req.URL, content.CrawlOptions{
		MaxPages: req.MaxPages,
		MaxDepth: req.MaxDepth,
		Timeout:  time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		log.Printf("[ERROR] crawl failed: %v", err)
		renderError(w, r, err, http.StatusBadGateway)
		return
	}
	renderJSON(w, r, http.StatusOK, draft)
}

// generateQuestionsHandler generates questions for the draft content
func (s *Server) generateQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
			return
		}
	}

	draft, err := s.analysis.GenerateQuestions(r.Context(), req.Count)
	if err != nil {
		log.Printf("[ERROR] question generation failed: %v", err)
		renderError(w, r, err, http.StatusBadGateway)
		return
	}
	renderJSON(w, r, http.StatusOK, draft)
}

// generateAnswersHandler generates answers for selected QA items, all items
// when no indexes are given
func (s *Server) generateAnswersHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Indexes []int `json:"indexes"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
			return
		}
	}

	draft, err := s.analysis.GenerateAnswers(r.Context(), req.Indexes)
	if err != nil {
		log.Printf("[ERROR] answer generation failed: %v", err)
		renderError(w, r, err, http.StatusBadGateway)
		return
	}
	renderJSON(w, r, http.StatusOK, draft)
}

// newAnalysisHandler purges the draft cache and resets the working state
func (s *Server) newAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, r, http.StatusOK, s.analysis.NewAnalysis(r.Context()))
}

// listSessionsHandler returns the session list newest-first
func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		log.Printf("[ERROR] failed to list sessions: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, sessions)
}

// deleteSessionHandler removes a session after explicit confirmation
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	confirmed := r.URL.Query().Get("confirm") == "true"
	if !confirmed {
		renderError(w, r, fmt.Errorf("confirmation required"), http.StatusBadRequest)
		return
	}

	if err := s.sessions.Delete(r.Context(), id, func() bool { return confirmed }); err != nil {
		log.Printf("[ERROR] failed to delete session %s: %v", id, err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]string{"deleted": id})
}

// expandSessionHandler marks a session open in the detail view
func (s *Server) expandSessionHandler(w http.ResponseWriter, r *http.Request) {
	s.sessions.Expand(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// collapseSessionHandler removes a session from the detail view
func (s *Server) collapseSessionHandler(w http.ResponseWriter, r *http.Request) {
	s.sessions.Collapse(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// exportSessionHandler downloads a session transcript as text
func (s *Server) exportSessionHandler(w http.ResponseWriter, r *http.Request) {
	name, transcript, err := s.sessions.Export(r.Context(), r.PathValue("id"))
	if err != nil {
		renderError(w, r, err, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := w.Write([]byte(transcript)); err != nil {
		log.Printf("[ERROR] failed to write transcript: %v", err)
	}
}

// historyHandler returns the flattened QA list across sessions
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.sessions.History(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		log.Printf("[ERROR] failed to build history: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, entries)
}

// statisticsHandler returns the session list plus the current session
func (s *Server) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sessions.Stats(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		log.Printf("[ERROR] failed to build statistics: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, stats)
}

// competitorsHandler returns the remembered competitor URL list
func (s *Server) competitorsHandler(w http.ResponseWriter, r *http.Request) {
	urls, err := s.sessions.CompetitorURLs(r.Context())
	if err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	if urls == nil {
		urls = []string{}
	}
	renderJSON(w, r, http.StatusOK, urls)
}

// saveCompetitorsHandler remembers the competitor URL list
func (s *Server) saveCompetitorsHandler(w http.ResponseWriter, r *http.Request) {
	var urls []string
	if err := json.NewDecoder(r.Body).Decode(&urls); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}
	if err := s.sessions.SaveCompetitorURLs(r.Context(), urls); err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// logoutHandler drops the current-session pointer
func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context()); err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
