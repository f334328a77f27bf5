// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/JakeFAU/kb-engine/internal/api"
	"github.com/JakeFAU/kb-engine/internal/ask"
	"github.com/JakeFAU/kb-engine/internal/catalog"
	"github.com/JakeFAU/kb-engine/internal/config"
	"github.com/JakeFAU/kb-engine/internal/crawl"
	"github.com/JakeFAU/kb-engine/internal/logging"
	"github.com/JakeFAU/kb-engine/internal/metrics"
	"github.com/JakeFAU/kb-engine/internal/runtime/docker"
	"github.com/JakeFAU/kb-engine/internal/search"
	"github.com/JakeFAU/kb-engine/internal/webtool"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and passed to the components that
// need it.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Runtime      *docker.Runtime
	Orchestrator *crawl.Orchestrator
	Catalog      *catalog.Catalog
	Engine       *search.Engine
	Aggregator   *ask.Aggregator
	Server       *api.Server
}

// New creates and initializes an App from configuration. It is the
// central point for service initialization and fails fast if any
// critical service cannot be built.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		APIKey:    cfg.Elasticsearch.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	rt, err := docker.New(logger)
	if err != nil {
		return nil, err
	}

	synth := crawl.NewSynthesizer(crawl.ESSettings{
		Host:   cfg.Crawler.ESHost,
		Port:   cfg.Crawler.ESPort,
		UseSSL: cfg.Crawler.ESUseSSL,
		User:   cfg.Crawler.ESUser,
	}, cfg.Crawler.LogLevel, cfg.Crawler.ConfigPath)

	var validator crawl.SeedValidator
	if cfg.Crawler.ValidateSeeds {
		validator = webtool.NewValidator(nil, cfg.Crawler.MaxChildPages, logger)
	}

	orchestrator := crawl.New(rt, synth, crawl.NewHandleStore(), validator, crawl.Config{
		Image:            cfg.Crawler.Image,
		NamePrefix:       cfg.Crawler.NamePrefix,
		IndexPrefix:      cfg.Elasticsearch.IndexPrefix,
		LogTail:          cfg.Crawler.LogTail,
		BatchConcurrency: cfg.Crawler.BatchConcurrency,
	}, logger)

	cat := catalog.New(es, cfg.Elasticsearch.IndexPrefix, cfg.Elasticsearch.Pipeline, logger)
	if err := cat.EnsureTemplate(ctx); err != nil {
		// The runtime already holds a client connection; release it
		// before abandoning initialization.
		_ = rt.Close()
		return nil, err
	}

	engine := search.NewEngine(es, logger)
	aggregator := ask.New(engine, cfg.Ask.MaxConcurrency, logger)
	server := api.NewServer(orchestrator, cat, aggregator, cfg.Crawler.LogTail, logger)

	logger.Info("application services initialized",
		zap.String("index_prefix", cfg.Elasticsearch.IndexPrefix),
		zap.String("worker_image", cfg.Crawler.Image),
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Runtime:      rt,
		Orchestrator: orchestrator,
		Catalog:      cat,
		Engine:       engine,
		Aggregator:   aggregator,
		Server:       server,
	}, nil
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	if err := a.Runtime.Close(); err != nil {
		a.Logger.Warn("error closing docker client", zap.Error(err))
	}
	// Flush buffered log entries; best effort on shutdown.
	_ = a.Logger.Sync()
}
