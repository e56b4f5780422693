package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/kabini-ai/kabini/pkg/content"
	"github.com/kabini-ai/kabini/pkg/domain"
	"github.com/kabini-ai/kabini/pkg/session"
)

// Server represents HTTP server instance
type Server struct {
	config   ConfigProvider
	analysis Analysis
	sessions Sessions
	version  string
	debug    bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Analysis is the working-draft interface for server operations
type Analysis interface {
	Snapshot() domain.Draft
	SetContent(ctx context.Context, text string) domain.Draft
	SetProviders(ctx context.Context, question, answer domain.ProviderSelection) domain.Draft
	SetQuestionCount(ctx context.Context, count int) domain.Draft
	AddURL(ctx context.Context, url string) (domain.Draft, error)
	RemoveURL(ctx context.Context, index int) (domain.Draft, error)
	ExtractURL(ctx context.Context, index int) (domain.Draft, error)
	Crawl(ctx context.Context, url string, opts content.CrawlOptions) (domain.Draft, error)
	GenerateQuestions(ctx context.Context, count int) (domain.Draft, error)
	GenerateAnswers(ctx context.Context, indexes []int) (domain.Draft, error)
	NewAnalysis(ctx context.Context) domain.Draft
}

// Sessions is the session-store interface for server operations
type Sessions interface {
	List(ctx context.Context, userID string) ([]domain.Session, error)
	Delete(ctx context.Context, id string, confirm func() bool) error
	Expand(id string)
	Collapse(id string)
	History(ctx context.Context, userID string) ([]domain.HistoryEntry, error)
	Stats(ctx context.Context, userID string) (*session.Statistics, error)
	Export(ctx context.Context, id string) (name, transcript string, err error)
	Logout(ctx context.Context) error
	SaveCompetitorURLs(ctx context.Context, urls []string) error
	CompetitorURLs(ctx context.Context) ([]string, error)
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// New initializes a new server instance
func New(cfg ConfigProvider, analysis Analysis, sessions Sessions, version string, debug bool) *Server {
	s := &Server{
		config:   cfg,
		analysis: analysis,
		sessions: sessions,
		version:  version,
		debug:    debug,
		router:   routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("kabini", "kabini-ai", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(4 * 1024 * 1024)) // analyzed content can be large
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)

		// working draft
		r.HandleFunc("GET /draft", s.draftHandler)
		r.HandleFunc("POST /draft/content", s.setContentHandler)
		r.HandleFunc("POST /draft/providers", s.setProvidersHandler)
		r.HandleFunc("POST /draft/question-count", s.setQuestionCountHandler)
		r.HandleFunc("POST /draft/urls", s.addURLHandler)
		r.HandleFunc("DELETE /draft/urls/{index}", s.removeURLHandler)
		r.HandleFunc("POST /draft/urls/{index}/extract", s.extractURLHandler)
		r.HandleFunc("POST /draft/crawl", s.crawlHandler)

		// analysis flow
		r.HandleFunc("POST /analysis/questions", s.generateQuestionsHandler)
		r.HandleFunc("POST /analysis/answers", s.generateAnswersHandler)
		r.HandleFunc("POST /analysis/new", s.newAnalysisHandler)

		// session store
		r.HandleFunc("GET /sessions", s.listSessionsHandler)
		r.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)
		r.HandleFunc("POST /sessions/{id}/expand", s.expandSessionHandler)
		r.HandleFunc("POST /sessions/{id}/collapse", s.collapseSessionHandler)
		r.HandleFunc("GET /sessions/{id}/export", s.exportSessionHandler)
		r.HandleFunc("GET /history", s.historyHandler)
		r.HandleFunc("GET /statistics", s.statisticsHandler)

		// competitor URL recall and logout
		r.HandleFunc("GET /competitors", s.competitorsHandler)
		r.HandleFunc("PUT /competitors", s.saveCompetitorsHandler)
		r.HandleFunc("POST /logout", s.logoutHandler)
	})
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
