package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/unnamedteam/docserver/internal/content"
	"github.com/unnamedteam/docserver/internal/domain"
)

const (
	// RootFolder is the repository folder documentation is read from
	RootFolder = "docs"

	// ManifestFile lists the children of a directory in display order
	ManifestFile = "index.txt"

	// PageSuffix marks documentation page files
	PageSuffix = ".md"
)

var tracer = otel.Tracer("github.com/unnamedteam/docserver/internal/tree")

var lineBreak = regexp.MustCompile(`\r?\n`)

// ContentClient reads repository contents at a ref
type ContentClient interface {
	// ListDirectory returns domain.ErrNotFound when path does not exist at ref
	ListDirectory(ctx context.Context, repo domain.Repository, dirPath, ref string) ([]domain.Entry, error)
	Download(ctx context.Context, entry domain.Entry) (string, error)
	CommitHistory(ctx context.Context, repo domain.Repository, filePath, ref string, limit int) ([]domain.Commit, error)
}

// Config holds builder configuration
type Config struct {
	Client   ContentClient
	Pipeline *content.Pipeline

	// Concurrency bounds the sibling entries processed at once per directory
	Concurrency int

	Logger *slog.Logger
}

// Builder builds documentation trees from repository contents
type Builder struct {
	client      ContentClient
	pipeline    *content.Pipeline
	concurrency int
	logger      *slog.Logger
}

// New creates a tree builder
func New(cfg Config) (*Builder, error) {
	if cfg.Client == nil {
		return nil, errors.New("content client is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("content pipeline is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Builder{
		client:      cfg.Client,
		pipeline:    cfg.Pipeline,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}, nil
}

// Build returns the documentation of repo at version, or nil when the
// version has no documentation pages
func (b *Builder) Build(ctx context.Context, repo domain.Repository, version domain.Version) (*domain.Documentation, error) {
	ctx, span := tracer.Start(ctx, "tree.Build")
	span.SetAttributes(
		attribute.String("repository", repo.FullName),
		attribute.String("ref", version.Version),
	)
	defer span.End()

	start := time.Now()
	root, err := b.buildDir(ctx, repo, version, RootFolder, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to build documentation for %s@%s: %w", repo.FullName, version.Version, err)
	}

	b.logger.Debug("documentation tree built",
		"repository", repo.FullName,
		"ref", version.Version,
		"root_entries", root.Len(),
		"duration", time.Since(start),
	)

	if root.Len() == 0 {
		return nil, nil
	}
	return &domain.Documentation{Content: root}, nil
}

// builtEntry is a resolved child before ordering
type builtEntry struct {
	// key is the final map key: stripped name for pages, raw name for directories
	key string
	// rawName is the name as listed
	rawName string
	node    domain.Node
}

// buildDir lists dirPath and returns a freshly owned content for it.
// segments are the directory names from the documentation root.
func (b *Builder) buildDir(ctx context.Context, repo domain.Repository, version domain.Version, dirPath string, segments []string) (*domain.Content, error) {
	entries, err := b.client.ListDirectory(ctx, repo, dirPath, version.Version)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewContent(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dirPath, err)
	}

	var manifest []string
	built := make([]*builtEntry, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, entry := range entries {
		switch {
		case entry.Type == domain.EntryFile && entry.Name == ManifestFile:
			g.Go(func() error {
				text, err := b.client.Download(gctx, entry)
				if err != nil {
					return fmt.Errorf("failed to download manifest %s: %w", entry.Path, err)
				}
				manifest = parseManifest(text)
				return nil
			})

		case entry.Type == domain.EntryFile && strings.HasSuffix(entry.Name, PageSuffix):
			g.Go(func() error {
				node, err := b.buildPage(gctx, repo, version, entry, segments)
				if err != nil {
					return err
				}
				built[i] = &builtEntry{key: node.Name, rawName: entry.Name, node: node}
				return nil
			})

		case entry.Type == domain.EntryDir:
			g.Go(func() error {
				childSegments := append(append([]string(nil), segments...), entry.Name)
				children, err := b.buildDir(gctx, repo, version, entry.Path, childSegments)
				if err != nil {
					return err
				}
				if children.Len() == 0 {
					// prune directories without pages
					return nil
				}
				built[i] = &builtEntry{
					key:     entry.Name,
					rawName: entry.Name,
					node: &domain.DirectoryNode{
						Name:        entry.Name,
						DisplayName: content.Humanize(entry.Name),
						Content:     children,
					},
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	resolved := make([]*builtEntry, 0, len(built))
	for _, e := range built {
		if e != nil {
			resolved = append(resolved, e)
		}
	}
	order(resolved, manifest)

	out := domain.NewContent()
	for _, e := range resolved {
		if !out.Set(e.key, e.node) {
			b.logger.Warn("duplicate documentation key dropped",
				"repository", repo.FullName,
				"ref", version.Version,
				"directory", dirPath,
				"key", e.key,
				"entry", e.rawName,
			)
		}
	}
	return out, nil
}

func (b *Builder) buildPage(ctx context.Context, repo domain.Repository, version domain.Version, entry domain.Entry, segments []string) (*domain.FileNode, error) {
	key := strings.TrimSuffix(entry.Name, PageSuffix)

	lastUpdate := domain.UnknownDate
	commits, err := b.client.CommitHistory(ctx, repo, entry.Path, version.Version, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history of %s: %w", entry.Path, err)
	}
	if len(commits) > 0 && commits[0].Timestamp != "" {
		lastUpdate = commits[0].Timestamp
	}

	raw, err := b.client.Download(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", entry.Path, err)
	}

	rendered, err := b.pipeline.Process(ctx, raw, content.FileContext{
		Repository: repo,
		Version:    version,
		File:       entry,
	})
	if err != nil {
		return nil, err
	}

	return &domain.FileNode{
		Name:           key,
		DisplayName:    content.PageTitle(key, rendered),
		Content:        rendered,
		Path:           append(append([]string(nil), segments...), key),
		LastUpdateDate: lastUpdate,
	}, nil
}

// parseManifest splits a manifest into trimmed, non-empty child keys
func parseManifest(text string) []string {
	var keys []string
	for _, line := range lineBreak.Split(text, -1) {
		if line = strings.TrimSpace(line); line != "" {
			keys = append(keys, line)
		}
	}
	return keys
}

// order sorts entries by manifest position when a manifest exists, unlisted
// entries last; ties and manifest-less directories sort by key
func order(entries []*builtEntry, manifest []string) {
	if manifest == nil {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].key < entries[j].key
		})
		return
	}

	position := make(map[string]int, len(manifest))
	for i, name := range manifest {
		if _, seen := position[name]; !seen {
			position[name] = i
		}
	}
	indexOf := func(e *builtEntry) (int, bool) {
		if i, ok := position[e.key]; ok {
			return i, true
		}
		i, ok := position[e.rawName]
		return i, ok
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ai, aListed := indexOf(entries[i])
		bi, bListed := indexOf(entries[j])
		switch {
		case aListed && bListed:
			return ai < bi
		case aListed != bListed:
			return aListed
		default:
			return entries[i].key < entries[j].key
		}
	})
}
