// Package gitstore serves documentation contents from local git mirrors of
// organization repositories instead of the REST API.
package gitstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/sync/singleflight"

	"github.com/unnamedteam/docserver/internal/domain"
	"github.com/unnamedteam/docserver/internal/github"
)

const rawScheme = "mirror"

// Store keeps bare mirrors of repositories under a local directory
type Store struct {
	config  Config
	mu      sync.RWMutex
	mirrors map[string]*mirror
	// locks serialize object reads and fetches per repository; go-git
	// storage is not safe for concurrent use
	locks   map[string]*sync.Mutex
	flights singleflight.Group
	logger  *slog.Logger
}

type mirror struct {
	repo      *git.Repository
	fetchedAt time.Time
	// local mirrors were opened from disk and are never fetched
	local bool
}

// Config holds git store configuration
type Config struct {
	// BaseURL is the clone URL prefix, e.g. https://github.com
	BaseURL   string
	LocalPath string
	Auth      github.TokenSource

	// MaxAge is how long a mirror is used before fetching new tags
	MaxAge     time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

// New creates a git store
func New(cfg Config) (*Store, error) {
	if cfg.LocalPath == "" {
		return nil, errors.New("local path is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://github.com"
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Store{
		config:  cfg,
		mirrors: make(map[string]*mirror),
		locks:   make(map[string]*sync.Mutex),
		logger:  cfg.Logger,
	}, nil
}

// Open registers an existing repository on disk as the mirror of repo.
// Opened mirrors are read as-is and never fetched.
func (s *Store) Open(repo domain.Repository, path string) error {
	r, err := git.PlainOpen(path)
	if err != nil {
		return fmt.Errorf("failed to open %s at %s: %w", repo.FullName, path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrors[repo.FullName] = &mirror{repo: r, fetchedAt: time.Now(), local: true}
	return nil
}

// RemoteURL returns the clone URL of repo
func (s *Store) RemoteURL(repo domain.Repository) string {
	return strings.TrimSuffix(s.config.BaseURL, "/") + "/" + repo.FullName + ".git"
}

func (s *Store) lockFor(fullName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[fullName]
	if !ok {
		l = &sync.Mutex{}
		s.locks[fullName] = l
	}
	return l
}

// mirrorOf returns an up-to-date mirror of repo, cloning or fetching as needed
func (s *Store) mirrorOf(ctx context.Context, repo domain.Repository) (*git.Repository, error) {
	s.mu.RLock()
	m, ok := s.mirrors[repo.FullName]
	s.mu.RUnlock()
	if ok && (m.local || time.Since(m.fetchedAt) < s.config.MaxAge) {
		return m.repo, nil
	}

	res, err, _ := s.flights.Do(repo.FullName, func() (any, error) {
		s.mu.RLock()
		current := s.mirrors[repo.FullName]
		s.mu.RUnlock()
		if current != nil && (current.local || time.Since(current.fetchedAt) < s.config.MaxAge) {
			return current.repo, nil
		}

		r, err := s.syncWithRetry(context.WithoutCancel(ctx), repo, current)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.mirrors[repo.FullName] = &mirror{repo: r, fetchedAt: time.Now()}
		s.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*git.Repository), nil
}

// syncWithRetry clones or fetches with exponential backoff
func (s *Store) syncWithRetry(ctx context.Context, repo domain.Repository, current *mirror) (*git.Repository, error) {
	var lastErr error
	backoff := 1 * time.Second

	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		r, err := s.sync(ctx, repo, current)
		if err == nil {
			return r, nil
		}

		lastErr = err
		s.logger.Warn("mirror sync attempt failed",
			"repository", repo.FullName,
			"attempt", attempt+1,
			"max_retries", s.config.MaxRetries,
			"error", err,
			"next_backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
	}

	return nil, fmt.Errorf("mirror sync of %s failed after %d retries: %w", repo.FullName, s.config.MaxRetries, lastErr)
}

func (s *Store) sync(ctx context.Context, repo domain.Repository, current *mirror) (*git.Repository, error) {
	auth, err := s.getAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth: %w", err)
	}

	localPath := filepath.Join(s.config.LocalPath, filepath.FromSlash(repo.FullName)+".git")

	var r *git.Repository
	if current != nil {
		r = current.repo
	} else if opened, err := git.PlainOpen(localPath); err == nil {
		r = opened
	}

	if r == nil {
		if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create parent directory: %w", err)
		}
		if err := os.RemoveAll(localPath); err != nil {
			return nil, fmt.Errorf("failed to clean existing directory: %w", err)
		}

		s.logger.Info("cloning repository mirror",
			"repository", repo.FullName,
			"url", s.RemoteURL(repo),
			"path", localPath,
		)

		cloned, err := git.PlainCloneContext(ctx, localPath, true, &git.CloneOptions{
			URL:  s.RemoteURL(repo),
			Auth: auth,
			Tags: git.AllTags,
		})
		if err != nil {
			return nil, fmt.Errorf("clone of %s failed: %w", repo.FullName, err)
		}
		return cloned, nil
	}

	lock := s.lockFor(repo.FullName)
	lock.Lock()
	err = r.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		Tags:       git.AllTags,
		Force:      true,
	})
	lock.Unlock()
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("fetch of %s failed: %w", repo.FullName, err)
	}
	if err == nil {
		s.logger.Info("repository mirror updated", "repository", repo.FullName)
	}
	return r, nil
}

func (s *Store) getAuth(ctx context.Context) (transport.AuthMethod, error) {
	if s.config.Auth == nil {
		return nil, nil
	}
	token, err := s.config.Auth.Token(ctx)
	if err != nil {
		return nil, err
	}

	return &http.BasicAuth{
		Username: "x-access-token",
		Password: token,
	}, nil
}

// commitAt resolves ref (tag, branch or hash) to a commit
func commitAt(r *git.Repository, ref string) (*object.Commit, error) {
	hash, err := r.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", ref, err)
	}
	commit, err := r.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", hash, err)
	}
	return commit, nil
}

// read runs fn on the mirror of repo at ref while holding the mirror lock.
// Trees and files load objects lazily, so fn must not let them escape.
func (s *Store) read(ctx context.Context, repo domain.Repository, ref string, fn func(r *git.Repository, commit *object.Commit, root *object.Tree) error) error {
	r, err := s.mirrorOf(ctx, repo)
	if err != nil {
		return err
	}

	lock := s.lockFor(repo.FullName)
	lock.Lock()
	defer lock.Unlock()

	commit, err := commitAt(r, ref)
	if err != nil {
		return fmt.Errorf("%s: %w", repo.FullName, err)
	}
	root, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("failed to read tree of %s@%s: %w", repo.FullName, ref, err)
	}
	return fn(r, commit, root)
}

// ListDirectory lists dirPath at ref; a missing directory returns domain.ErrNotFound
func (s *Store) ListDirectory(ctx context.Context, repo domain.Repository, dirPath, ref string) ([]domain.Entry, error) {
	var entries []domain.Entry
	err := s.read(ctx, repo, ref, func(_ *git.Repository, _ *object.Commit, root *object.Tree) error {
		dir, err := root.Tree(dirPath)
		if errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return fmt.Errorf("%s@%s:%s: %w", repo.FullName, ref, dirPath, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to list %s@%s:%s: %w", repo.FullName, ref, dirPath, err)
		}

		entries = make([]domain.Entry, 0, len(dir.Entries))
		for _, e := range dir.Entries {
			p := dirPath + "/" + e.Name
			switch {
			case e.Mode == filemode.Dir:
				entries = append(entries, domain.Entry{Name: e.Name, Path: p, Type: domain.EntryDir, Ref: ref})
			case e.Mode.IsFile():
				entries = append(entries, domain.Entry{
					Name:   e.Name,
					Path:   p,
					Type:   domain.EntryFile,
					RawURL: RawURL(repo.FullName, ref, p),
					Ref:    ref,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Download reads the file an entry listed by this store points at
func (s *Store) Download(ctx context.Context, entry domain.Entry) (string, error) {
	fullName, ref, p, err := parseRawURL(entry.RawURL)
	if err != nil {
		return "", err
	}

	var text string
	err = s.read(ctx, domain.Repository{FullName: fullName}, ref, func(_ *git.Repository, _ *object.Commit, root *object.Tree) error {
		file, err := root.File(p)
		if errors.Is(err, object.ErrFileNotFound) {
			return fmt.Errorf("%s@%s:%s: %w", fullName, ref, p, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read %s@%s:%s: %w", fullName, ref, p, err)
		}

		text, err = file.Contents()
		if err != nil {
			return fmt.Errorf("failed to read %s@%s:%s: %w", fullName, ref, p, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// CommitHistory returns up to limit commits touching filePath reachable from ref
func (s *Store) CommitHistory(ctx context.Context, repo domain.Repository, filePath, ref string, limit int) ([]domain.Commit, error) {
	if limit <= 0 {
		limit = 1
	}

	var out []domain.Commit
	err := s.read(ctx, repo, ref, func(r *git.Repository, commit *object.Commit, _ *object.Tree) error {
		iter, err := r.Log(&git.LogOptions{From: commit.Hash, FileName: &filePath})
		if err != nil {
			return fmt.Errorf("failed to read history of %s@%s:%s: %w", repo.FullName, ref, filePath, err)
		}
		defer iter.Close()

		for len(out) < limit {
			c, err := iter.Next()
			if err != nil {
				break
			}
			out = append(out, domain.Commit{
				SHA:       c.Hash.String(),
				Timestamp: c.Committer.When.UTC().Format(time.RFC3339),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RawURL identifies a file of a mirror at a ref
func RawURL(fullName, ref, p string) string {
	owner, name, _ := strings.Cut(fullName, "/")
	u := url.URL{
		Scheme:   rawScheme,
		Host:     owner,
		Path:     "/" + name,
		RawQuery: url.Values{"ref": {ref}, "path": {p}}.Encode(),
	}
	return u.String()
}

func parseRawURL(raw string) (fullName, ref, p string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != rawScheme {
		return "", "", "", fmt.Errorf("not a mirror file URL: %q", raw)
	}
	q := u.Query()
	return u.Host + u.Path, q.Get("ref"), q.Get("path"), nil
}
