package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/kabini-ai/kabini/pkg/config"
	"github.com/kabini-ai/kabini/pkg/content"
	"github.com/kabini-ai/kabini/pkg/draft"
	"github.com/kabini-ai/kabini/pkg/llm"
	"github.com/kabini-ai/kabini/pkg/repository"
	"github.com/kabini-ai/kabini/pkg/scoring"
	"github.com/kabini-ai/kabini/pkg/service"
	"github.com/kabini-ai/kabini/pkg/session"
	"github.com/kabini-ai/kabini/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" default:"config.yml" description:"config file path"`
	Listen string `short:"l" long:"listen" env:"LISTEN" description:"listen address, overrides config"`
	User   string `short:"u" long:"user" env:"KABINI_USER" description:"user id for session attribution"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Printf("[ERROR] failed to load config: %v", err)
		os.Exit(1)
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}

	setupLog(opts.Debug, cfg.LLM.APIKey)

	log.Printf("[INFO] starting kabini version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, cfg, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}

	log.Print("[INFO] shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, opts Opts) error {
	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if e := repos.Close(); e != nil {
			log.Printf("[WARN] failed to close database: %v", e)
		}
	}()

	extractor := content.NewHTTPExtractor(cfg.Extraction.Timeout, cfg.Extraction.UserAgent, cfg.Extraction.MinTextLength)
	crawler := content.NewCrawler(extractor, cfg.Extraction.UserAgent)
	generator := llm.NewGenerator(cfg.LLM)
	scorer := scoring.NewScorer(generator, generator)

	drafts := draft.NewManager(repos.Draft)
	tracker := session.NewTracker(repos.Session, repos.Setting)

	analyzer := service.NewAnalyzer(ctx, service.Config{
		Drafts:    drafts,
		Sessions:  tracker,
		Extractor: extractor,
		Crawler:   crawler,
		Generator: generator,
		Scorer:    scorer,
		Pricer:    cfg,
		CrawlOpts: content.CrawlOptions{
			MaxPages: cfg.Crawl.MaxPages,
			MaxDepth: cfg.Crawl.MaxDepth,
			Timeout:  cfg.Crawl.Timeout,
		},
		UserID: opts.User,
	})

	janitor := service.NewJanitor(repos.Draft, cfg.Retention.DraftTTL, cfg.Retention.CleanupInterval)
	janitor.Start(ctx)
	defer janitor.Stop()

	srv := server.New(cfg, analyzer, tracker, revision, opts.Debug)
	return srv.Run(ctx)
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = append(logOpts, lgr.Debug, lgr.CallerFile, lgr.CallerFunc)
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	for _, s := range secs {
		if s != "" {
			logOpts = append(logOpts, lgr.Secret(s))
		}
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
