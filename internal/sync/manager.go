// Package sync keeps the project map warm by rebuilding it on a fixed interval.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/unnamedteam/docserver/internal/middleware"
)

// Refresher rebuilds the served project map
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Manager periodically refreshes the project map
type Manager struct {
	refresher    Refresher
	pollInterval time.Duration
	maxRetries   int
	backoff      time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	lastSync time.Time
	lastErr  error
	syncing  bool
}

// Config holds sync manager configuration
type Config struct {
	Refresher    Refresher
	PollInterval time.Duration

	// MaxRetries is the number of attempts per refresh
	MaxRetries int
	// Backoff is the delay after the first failed attempt; it doubles per attempt
	Backoff time.Duration

	Logger *slog.Logger
}

// NewManager creates a new sync manager
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Refresher == nil {
		return nil, errors.New("refresher is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		refresher:    cfg.Refresher,
		pollInterval: cfg.PollInterval,
		maxRetries:   cfg.MaxRetries,
		backoff:      cfg.Backoff,
		logger:       cfg.Logger,
	}, nil
}

// Start refreshes once and then on every poll interval until ctx ends
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.logger.Info("sync manager started", "poll_interval", m.pollInterval)
	m.SyncNow(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("sync manager stopped")
			return

		case <-ticker.C:
			m.SyncNow(ctx, "poll")
		}
	}
}

// LastSyncTime returns the last successful sync time
func (m *Manager) LastSyncTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync
}

// LastError returns the error of the last sync, nil if it succeeded
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// IsSyncing returns whether a sync is in progress
func (m *Manager) IsSyncing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncing
}

// SyncNow refreshes the project map unless a refresh is already running
func (m *Manager) SyncNow(ctx context.Context, source string) {
	m.mu.Lock()
	if m.syncing {
		m.mu.Unlock()
		m.logger.Debug("sync already in progress")
		return
	}
	m.syncing = true
	m.mu.Unlock()

	start := time.Now()
	m.logger.Info("starting sync", "source", source)

	err := m.refreshWithRetry(ctx)
	middleware.DocsSyncDuration.Observe(time.Since(start).Seconds())

	m.mu.Lock()
	m.syncing = false
	m.lastErr = err
	if err == nil {
		m.lastSync = time.Now()
	}
	m.mu.Unlock()

	if err != nil {
		middleware.DocsSyncErrors.Inc()
		m.logger.Error("sync failed",
			"source", source,
			"error", err,
			"duration", time.Since(start),
		)
		return
	}

	m.logger.Info("sync completed",
		"source", source,
		"duration", time.Since(start),
	)
}

func (m *Manager) refreshWithRetry(ctx context.Context) error {
	var lastErr error
	backoff := m.backoff

	for attempt := 0; attempt < m.maxRetries; attempt++ {
		err := m.refresher.Refresh(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == m.maxRetries-1 {
			break
		}
		m.logger.Warn("refresh attempt failed",
			"attempt", attempt+1,
			"max_retries", m.maxRetries,
			"error", err,
			"next_backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 5*time.Minute {
				backoff = 5 * time.Minute
			}
		}
	}

	return fmt.Errorf("refresh failed after %d attempts: %w", m.maxRetries, lastErr)
}
