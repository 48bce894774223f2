// Package testutil provides an in-memory forge for exercising documentation
// builds without network access.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/unnamedteam/docserver/internal/domain"
)

// Forge is an in-memory repository host. It implements the content client,
// release lister and repository lister interfaces.
type Forge struct {
	mu           sync.Mutex
	repositories []domain.Repository
	releases     map[string][]domain.Release
	releaseErrs  map[string]error
	files        map[string]map[string]string // fullName@ref -> path -> content
	raw          map[string]string            // raw URL -> content
	commits      map[string]string            // fullName@ref:path -> timestamp
	failures     map[string]error             // fullName@ref:path -> error

	ListDirectoryCalls atomic.Int32
	ListReleaseCalls   atomic.Int32
	ListRepoCalls      atomic.Int32
}

// NewForge creates an empty forge
func NewForge() *Forge {
	return &Forge{
		releases:    make(map[string][]domain.Release),
		releaseErrs: make(map[string]error),
		files:       make(map[string]map[string]string),
		raw:         make(map[string]string),
		commits:     make(map[string]string),
		failures:    make(map[string]error),
	}
}

func refKey(fullName, ref string) string { return fullName + "@" + ref }

func pathKey(fullName, ref, p string) string { return refKey(fullName, ref) + ":" + p }

// RawURL returns the download URL the forge assigns to a file
func RawURL(fullName, ref, p string) string {
	return fmt.Sprintf("https://raw.example.com/%s/%s/%s", fullName, ref, p)
}

// AddRepository registers a repository for organization listings
func (f *Forge) AddRepository(repo domain.Repository) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repositories = append(f.repositories, repo)
}

// AddReleases registers release tags, newest first
func (f *Forge) AddReleases(fullName string, tags ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tag := range tags {
		f.releases[fullName] = append(f.releases[fullName], domain.Release{TagName: tag, Name: tag})
	}
}

// FailReleases makes release listing of a repository fail
func (f *Forge) FailReleases(fullName string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseErrs[fullName] = err
}

// AddFile stores a file at ref
func (f *Forge) AddFile(fullName, ref, p, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := refKey(fullName, ref)
	if f.files[k] == nil {
		f.files[k] = make(map[string]string)
	}
	f.files[k][p] = content
	f.raw[RawURL(fullName, ref, p)] = content
}

// SetCommitDate records the last commit timestamp of a path at ref
func (f *Forge) SetCommitDate(fullName, ref, p, timestamp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits[pathKey(fullName, ref, p)] = timestamp
}

// Fail makes every operation touching path at ref return err
func (f *Forge) Fail(fullName, ref, p string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[pathKey(fullName, ref, p)] = err
}

// ListRepositories returns every registered repository
func (f *Forge) ListRepositories(_ context.Context, _ string) ([]domain.Repository, error) {
	f.ListRepoCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Repository(nil), f.repositories...), nil
}

// ListReleases returns registered releases, newest first
func (f *Forge) ListReleases(_ context.Context, repo domain.Repository) ([]domain.Release, error) {
	f.ListReleaseCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.releaseErrs[repo.FullName]; err != nil {
		return nil, err
	}
	return append([]domain.Release(nil), f.releases[repo.FullName]...), nil
}

// ListDirectory lists the direct children of dirPath at ref. Directories
// exist only while they contain files, as in git.
func (f *Forge) ListDirectory(_ context.Context, repo domain.Repository, dirPath, ref string) ([]domain.Entry, error) {
	f.ListDirectoryCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failures[pathKey(repo.FullName, ref, dirPath)]; err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(dirPath, "/") + "/"
	seen := make(map[string]domain.Entry)
	for p := range f.files[refKey(repo.FullName, ref)] {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		name, _, nested := strings.Cut(rest, "/")
		if nested {
			seen[name] = domain.Entry{Name: name, Path: prefix + name, Type: domain.EntryDir, Ref: ref}
			continue
		}
		seen[name] = domain.Entry{
			Name:   name,
			Path:   p,
			Type:   domain.EntryFile,
			RawURL: RawURL(repo.FullName, ref, p),
			Ref:    ref,
		}
	}
	if len(seen) == 0 {
		return nil, domain.ErrNotFound
	}

	entries := make([]domain.Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Download returns the content behind entry.RawURL
func (f *Forge) Download(_ context.Context, entry domain.Entry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, err := range f.failures {
		if strings.HasSuffix(k, "@"+entry.Ref+":"+entry.Path) {
			return "", err
		}
	}
	text, ok := f.raw[entry.RawURL]
	if !ok {
		return "", fmt.Errorf("download %s: %w", entry.RawURL, domain.ErrNotFound)
	}
	return text, nil
}

// CommitHistory returns at most one commit carrying the recorded timestamp
func (f *Forge) CommitHistory(_ context.Context, repo domain.Repository, p, ref string, limit int) ([]domain.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts, ok := f.commits[pathKey(repo.FullName, ref, p)]; ok && limit > 0 {
		return []domain.Commit{{SHA: "0000000", Timestamp: ts}}, nil
	}
	return nil, nil
}
