package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/unnamedteam/docserver/internal/cache"
	"github.com/unnamedteam/docserver/internal/domain"
	"github.com/unnamedteam/docserver/internal/versions"
)

// CachedReleases serves release listings from a TTL cache keyed by
// repository full name
type CachedReleases struct {
	cache *cache.Cache[string, []domain.Release]

	mu    sync.Mutex
	repos map[string]domain.Repository
}

// NewCachedReleases puts a TTL cache in front of lister
func NewCachedReleases(lister versions.ReleaseLister, cfg cache.Config) (*CachedReleases, error) {
	if lister == nil {
		return nil, errors.New("release lister is required")
	}
	if cfg.Name == "" {
		cfg.Name = "releases"
	}

	c := &CachedReleases{repos: make(map[string]domain.Repository)}
	releases, err := cache.New(cfg, func(ctx context.Context, fullName string) ([]domain.Release, error) {
		return lister.ListReleases(ctx, c.repository(fullName))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create release cache: %w", err)
	}
	c.cache = releases
	return c, nil
}

// ListReleases returns the cached releases of repo
func (c *CachedReleases) ListReleases(ctx context.Context, repo domain.Repository) ([]domain.Release, error) {
	c.mu.Lock()
	c.repos[repo.FullName] = repo
	c.mu.Unlock()
	return c.cache.Get(ctx, repo.FullName)
}

func (c *CachedReleases) repository(fullName string) domain.Repository {
	c.mu.Lock()
	defer c.mu.Unlock()
	if repo, ok := c.repos[fullName]; ok {
		return repo
	}
	name := fullName
	if _, after, ok := strings.Cut(fullName, "/"); ok {
		name = after
	}
	return domain.Repository{Name: name, FullName: fullName}
}
