// Package registry builds and caches the project map of an organization.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unnamedteam/docserver/internal/cache"
	"github.com/unnamedteam/docserver/internal/domain"
	"github.com/unnamedteam/docserver/internal/middleware"
	"github.com/unnamedteam/docserver/internal/navigation"
	"github.com/unnamedteam/docserver/internal/versions"
)

// RepositoryLister lists the repositories of an organization
type RepositoryLister interface {
	ListRepositories(ctx context.Context, org string) ([]domain.Repository, error)
}

// VersionResolver resolves the documented versions of a repository
type VersionResolver interface {
	Resolve(ctx context.Context, repo domain.Repository) (versions.Result, error)
}

type projectsKey struct{}

// Registry provides the documented projects of an organization
type Registry struct {
	organization string
	repositories RepositoryLister
	versions     VersionResolver
	settings     map[string]domain.ProjectSettings
	concurrency  int
	projects     *cache.Cache[projectsKey, domain.ProjectMap]
	logger       *slog.Logger

	lastSyncAt atomic.Value // time.Time
}

// Config holds registry configuration
type Config struct {
	Organization string
	Repositories RepositoryLister
	Versions     VersionResolver

	// Settings are per-repository overrides keyed by repository name
	Settings map[string]domain.ProjectSettings

	// TTL is how long a project map is served before it is rebuilt
	TTL          time.Duration
	FetchTimeout time.Duration

	// Concurrency bounds the repositories resolved at once
	Concurrency int
	Logger      *slog.Logger
}

// New creates a registry
func New(cfg Config) (*Registry, error) {
	if cfg.Organization == "" {
		return nil, errors.New("organization is required")
	}
	if cfg.Repositories == nil {
		return nil, errors.New("repository lister is required")
	}
	if cfg.Versions == nil {
		return nil, errors.New("version resolver is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Registry{
		organization: cfg.Organization,
		repositories: cfg.Repositories,
		versions:     cfg.Versions,
		settings:     cfg.Settings,
		concurrency:  cfg.Concurrency,
		logger:       cfg.Logger,
	}
	r.lastSyncAt.Store(time.Time{})

	projects, err := cache.New(cache.Config{
		Name:         "projects",
		TTL:          cfg.TTL,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       cfg.Logger,
	}, func(ctx context.Context, _ projectsKey) (domain.ProjectMap, error) {
		return r.fetchProjects(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create project cache: %w", err)
	}
	r.projects = projects

	return r, nil
}

// Projects returns the project map, building it when missing or expired
func (r *Registry) Projects(ctx context.Context) (domain.ProjectMap, error) {
	return r.projects.Get(ctx, projectsKey{})
}

// Project returns one project by name
func (r *Registry) Project(ctx context.Context, name string) (*domain.Project, error) {
	projects, err := r.Projects(ctx)
	if err != nil {
		return nil, err
	}
	project, ok := projects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", navigation.ErrProjectNotFound, name)
	}
	return project, nil
}

// Refresh rebuilds the project map. The previous map keeps being served
// until the new one is complete.
func (r *Registry) Refresh(ctx context.Context) error {
	_, err := r.projects.Refresh(ctx, projectsKey{})
	return err
}

// Stats describes the currently served project map
type Stats struct {
	Projects   int
	Documented int
	LastSyncAt time.Time
	Loaded     bool
}

// Stats returns statistics without triggering a build
func (r *Registry) Stats() Stats {
	projects, _, ok := r.projects.Peek(projectsKey{})
	stats := Stats{
		Projects:   len(projects),
		Documented: countDocumented(projects),
		Loaded:     ok,
	}
	stats.LastSyncAt, _ = r.lastSyncAt.Load().(time.Time)
	return stats
}

func (r *Registry) fetchProjects(ctx context.Context) (domain.ProjectMap, error) {
	start := time.Now()

	repos, err := r.repositories.ListRepositories(ctx, r.organization)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories of %s: %w", r.organization, err)
	}

	var candidates []domain.Repository
	for _, repo := range repos {
		if repo.Private || repo.Archived || r.settings[repo.Name].Exclude {
			continue
		}
		candidates = append(candidates, repo)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })

	var (
		mu       sync.Mutex
		projects = make(domain.ProjectMap, len(candidates))
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, repo := range candidates {
		g.Go(func() error {
			result, err := r.versions.Resolve(gctx, repo)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Error("failed to resolve project versions",
					"repository", repo.FullName,
					"error", err,
				)
				failures = append(failures, err)
				return nil
			}
			projects[repo.Name] = r.project(repo, result)
			return nil
		})
	}
	_ = g.Wait()

	if len(candidates) > 0 && len(failures) == len(candidates) {
		return nil, fmt.Errorf("failed to resolve every project of %s: %w", r.organization, errors.Join(failures...))
	}

	documented := countDocumented(projects)
	middleware.DocsProjectsTotal.Set(float64(len(projects)))
	middleware.DocsDocumentedProjects.Set(float64(documented))
	r.lastSyncAt.Store(time.Now())

	r.logger.Info("project map built",
		"organization", r.organization,
		"project_count", len(projects),
		"documented_count", documented,
		"failed_count", len(failures),
		"duration", time.Since(start),
	)
	return projects, nil
}

func (r *Registry) project(repo domain.Repository, result versions.Result) *domain.Project {
	settings := r.settings[repo.Name]

	displayName := repo.Name
	if settings.DisplayName != "" {
		displayName = settings.DisplayName
	}
	description := repo.Description
	if settings.Description != "" {
		description = settings.Description
	}

	return &domain.Project{
		Name:          repo.Name,
		DisplayName:   displayName,
		Description:   description,
		Stars:         repo.Stars,
		Versions:      result.Versions,
		LatestVersion: result.Latest,
	}
}

func countDocumented(projects domain.ProjectMap) int {
	n := 0
	for _, p := range projects {
		if p.HasDocumentation() {
			n++
		}
	}
	return n
}
