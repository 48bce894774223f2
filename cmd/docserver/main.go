package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/unnamedteam/docserver/internal/api"
	"github.com/unnamedteam/docserver/internal/cache"
	"github.com/unnamedteam/docserver/internal/config"
	"github.com/unnamedteam/docserver/internal/content"
	"github.com/unnamedteam/docserver/internal/github"
	"github.com/unnamedteam/docserver/internal/gitstore"
	"github.com/unnamedteam/docserver/internal/maven"
	"github.com/unnamedteam/docserver/internal/middleware"
	"github.com/unnamedteam/docserver/internal/registry"
	"github.com/unnamedteam/docserver/internal/sync"
	"github.com/unnamedteam/docserver/internal/tree"
	"github.com/unnamedteam/docserver/internal/versions"
)

func main() {
	// Configuration decides the log level, so bootstrap with Info
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting documentation server",
		"organization", cfg.Organization,
		"content_source", cfg.ContentSource,
		"cache_ttl", cfg.CacheTTL,
		"refresh_interval", cfg.RefreshInterval,
	)

	// Initialize observability
	shutdownTracer, err := middleware.InitTracer(cfg.OTLPEndpoint, api.Version)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	}

	// GitHub access: App installation when configured, else a token
	ghConfig := github.Config{
		BaseURL: cfg.GitHubAPIURL,
		Token:   cfg.GitHubToken,
		Logger:  logger,
	}
	var tokens github.TokenSource
	if cfg.GitHubAppID != 0 {
		appAuth, err := github.NewAppAuth(http.DefaultTransport, cfg.GitHubAppID, cfg.GitHubAppPrivateKey, cfg.GitHubInstallationID)
		if err != nil {
			return fmt.Errorf("failed to initialize GitHub App auth: %w", err)
		}
		ghConfig.App = appAuth
		tokens = appAuth
	} else if cfg.GitHubToken != "" {
		tokens = github.StaticToken(cfg.GitHubToken)
	}

	ghClient, err := github.NewClient(ghConfig)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	var contentClient tree.ContentClient = ghClient
	if cfg.ContentSource == config.SourceGit {
		store, err := gitstore.New(gitstore.Config{
			BaseURL:   cfg.GitBaseURL,
			LocalPath: filepath.Join(cfg.DataPath, "mirrors"),
			Auth:      tokens,
			MaxAge:    cfg.RefreshInterval / 2,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create git store: %w", err)
		}
		contentClient = store
	}

	// Content pipeline: version macros, then markdown rendering
	metadata, err := maven.New(maven.Config{
		BaseURL:    cfg.NexusURL,
		Repository: cfg.MavenRepository,
		CacheSize:  cfg.MetadataCacheSize,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create maven client: %w", err)
	}
	pipeline := content.NewPipeline(
		content.NewMacros(metadata),
		content.NewMarkdown(content.MarkdownConfig{RawBaseURL: cfg.RawContentURL}),
	)

	builder, err := tree.New(tree.Config{
		Client:      contentClient,
		Pipeline:    pipeline,
		Concurrency: cfg.BuildConcurrency,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create tree builder: %w", err)
	}

	releases, err := registry.NewCachedReleases(ghClient, cache.Config{
		TTL:          cfg.CacheTTL / 2,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create release cache: %w", err)
	}

	resolver, err := versions.New(versions.Config{
		Releases:    releases,
		Builder:     builder,
		Concurrency: cfg.BuildConcurrency,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create version resolver: %w", err)
	}

	reg, err := registry.New(registry.Config{
		Organization: cfg.Organization,
		Repositories: ghClient,
		Versions:     resolver,
		Settings:     cfg.Projects,
		TTL:          cfg.CacheTTL,
		FetchTimeout: cfg.FetchTimeout,
		Concurrency:  cfg.BuildConcurrency,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}

	// Initialize sync manager
	syncMgr, err := sync.NewManager(sync.Config{
		Refresher:    reg,
		PollInterval: cfg.RefreshInterval,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create sync manager: %w", err)
	}

	// Initialize API router
	router := api.NewRouter(api.Config{
		Organization: cfg.Organization,
		Projects:     reg,
		Sync:         syncMgr,
		Logger:       logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      middleware.Chain(router, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start sync manager
	syncCtx, syncCancel := context.WithCancel(context.Background())
	defer syncCancel()
	go syncMgr.Start(syncCtx)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	syncCancel() // Stop sync manager

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if shutdownTracer != nil {
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}

	logger.Info("server stopped gracefully")
	return nil
}
