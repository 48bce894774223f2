package versions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unnamedteam/docserver/internal/domain"
	"github.com/unnamedteam/docserver/internal/middleware"
)

// ReleaseLister lists the releases of a repository, newest first
type ReleaseLister interface {
	ListReleases(ctx context.Context, repo domain.Repository) ([]domain.Release, error)
}

// DocumentationBuilder builds the documentation of a repository at a version
type DocumentationBuilder interface {
	Build(ctx context.Context, repo domain.Repository, version domain.Version) (*domain.Documentation, error)
}

// Result holds the versions of a repository keyed by tag
type Result struct {
	// Latest is nil when the repository has no releases
	Latest   *domain.Version
	Versions map[string]*domain.Version
}

// Config holds resolver configuration
type Config struct {
	Releases ReleaseLister
	Builder  DocumentationBuilder

	// Concurrency bounds the versions built at once per repository
	Concurrency int

	Logger *slog.Logger
}

// Resolver turns repository releases into documented versions
type Resolver struct {
	releases    ReleaseLister
	builder     DocumentationBuilder
	concurrency int
	logger      *slog.Logger
}

// New creates a version resolver
func New(cfg Config) (*Resolver, error) {
	if cfg.Releases == nil {
		return nil, errors.New("release lister is required")
	}
	if cfg.Builder == nil {
		return nil, errors.New("documentation builder is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Resolver{
		releases:    cfg.Releases,
		builder:     cfg.Builder,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}, nil
}

// Resolve lists the releases of repo and builds the documentation of each.
// The newest release is the latest version. A failed build leaves that
// version without documentation.
func (r *Resolver) Resolve(ctx context.Context, repo domain.Repository) (Result, error) {
	releases, err := r.releases.ListReleases(ctx, repo)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list releases of %s: %w", repo.FullName, err)
	}

	result := Result{Versions: make(map[string]*domain.Version, len(releases))}
	if len(releases) == 0 {
		r.logger.Debug("repository has no releases", "repository", repo.FullName)
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, release := range releases {
		tag := release.TagName
		if tag == "" {
			continue
		}
		if _, dup := result.Versions[tag]; dup {
			continue
		}

		// the first kept release is the latest
		version := &domain.Version{Version: tag, Latest: result.Latest == nil}
		result.Versions[tag] = version
		if version.Latest {
			result.Latest = version
		}

		g.Go(func() error {
			version.Documentation = r.build(gctx, repo, *version)
			return nil
		})
	}

	// builds never fail the group; only cancellation of ctx surfaces here
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (r *Resolver) build(ctx context.Context, repo domain.Repository, version domain.Version) *domain.Documentation {
	start := time.Now()
	doc, err := r.builder.Build(ctx, repo, version)
	middleware.DocsBuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		middleware.DocsBuildErrors.Inc()
		r.logger.Error("failed to build documentation",
			"repository", repo.FullName,
			"version", version.Version,
			"error", err,
		)
		return nil
	}
	return doc
}
