// Package github reads organization repositories, releases and
// documentation contents through the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v62/github"

	"github.com/unnamedteam/docserver/internal/domain"
)

const maxDownloadSize = 4 << 20

// ErrTooLarge is returned for downloads over 4 MiB
var ErrTooLarge = errors.New("file exceeds download size limit")

// Config holds client configuration
type Config struct {
	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise
	BaseURL string

	// Token authenticates requests with a personal access token.
	// Ignored when App is set.
	Token string
	App   *AppAuth

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client reads repositories through the GitHub REST API
type Client struct {
	gh     *gh.Client
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a GitHub client
func NewClient(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.App != nil {
		httpClient = &http.Client{Timeout: httpClient.Timeout, Transport: cfg.App.Transport()}
	}

	client := gh.NewClient(httpClient)
	if cfg.App == nil && cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}

	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", cfg.BaseURL, err)
		}
		client.BaseURL = base
	}

	return &Client{
		gh:     client,
		http:   client.Client(),
		logger: cfg.Logger,
	}, nil
}

// ListRepositories returns every repository of org
func (c *Client) ListRepositories(ctx context.Context, org string) ([]domain.Repository, error) {
	opts := &gh.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var repos []domain.Repository
	for {
		page, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories of %s: %w", org, err)
		}
		for _, r := range page {
			repos = append(repos, domain.Repository{
				Name:          r.GetName(),
				FullName:      r.GetFullName(),
				Description:   r.GetDescription(),
				Private:       r.GetPrivate(),
				Archived:      r.GetArchived(),
				Stars:         r.GetStargazersCount(),
				HTMLURL:       r.GetHTMLURL(),
				DefaultBranch: r.GetDefaultBranch(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.Debug("listed organization repositories", "organization", org, "count", len(repos))
	return repos, nil
}

// ListReleases returns the published releases of repo, newest first
func (c *Client) ListReleases(ctx context.Context, repo domain.Repository) ([]domain.Release, error) {
	opts := &gh.ListOptions{PerPage: 100}

	var releases []domain.Release
	for {
		page, resp, err := c.gh.Repositories.ListReleases(ctx, repo.Owner(), repo.Repo(), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list releases of %s: %w", repo.FullName, err)
		}
		for _, r := range page {
			if r.GetDraft() {
				continue
			}
			releases = append(releases, domain.Release{TagName: r.GetTagName(), Name: r.GetName()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return releases, nil
}

// ListDirectory lists dirPath at ref. A missing path, or a path that is not a
// directory, returns domain.ErrNotFound.
func (c *Client) ListDirectory(ctx context.Context, repo domain.Repository, dirPath, ref string) ([]domain.Entry, error) {
	_, contents, resp, err := c.gh.Repositories.GetContents(ctx, repo.Owner(), repo.Repo(), dirPath,
		&gh.RepositoryContentGetOptions{Ref: ref})
	if isNotFound(resp, err) {
		return nil, fmt.Errorf("%s@%s:%s: %w", repo.FullName, ref, dirPath, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s@%s:%s: %w", repo.FullName, ref, dirPath, err)
	}
	if contents == nil {
		return nil, fmt.Errorf("%s@%s:%s is not a directory: %w", repo.FullName, ref, dirPath, domain.ErrNotFound)
	}

	entries := make([]domain.Entry, 0, len(contents))
	for _, item := range contents {
		var kind domain.EntryType
		switch item.GetType() {
		case "file":
			kind = domain.EntryFile
		case "dir":
			kind = domain.EntryDir
		default:
			// symlinks and submodules
			continue
		}
		entries = append(entries, domain.Entry{
			Name:   item.GetName(),
			Path:   item.GetPath(),
			Type:   kind,
			RawURL: item.GetDownloadURL(),
			Ref:    ref,
		})
	}
	return entries, nil
}

// Download fetches the raw text behind entry.RawURL
func (c *Client) Download(ctx context.Context, entry domain.Entry) (string, error) {
	if entry.RawURL == "" {
		return "", fmt.Errorf("%s has no download URL", entry.Path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.RawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", entry.RawURL, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", entry.RawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("download %s: %w", entry.RawURL, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: unexpected status code: %d", entry.RawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", entry.RawURL, err)
	}
	if len(body) > maxDownloadSize {
		return "", fmt.Errorf("%s: %w", entry.RawURL, ErrTooLarge)
	}
	return string(body), nil
}

// CommitHistory returns up to limit commits touching filePath at ref, newest first
func (c *Client) CommitHistory(ctx context.Context, repo domain.Repository, filePath, ref string, limit int) ([]domain.Commit, error) {
	if limit <= 0 {
		limit = 1
	}

	commits, _, err := c.gh.Repositories.ListCommits(ctx, repo.Owner(), repo.Repo(), &gh.CommitsListOptions{
		SHA:         ref,
		Path:        filePath,
		ListOptions: gh.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list commits of %s@%s:%s: %w", repo.FullName, ref, filePath, err)
	}

	out := make([]domain.Commit, 0, len(commits))
	for _, commit := range commits {
		if len(out) == limit {
			break
		}
		var timestamp string
		if date := commit.GetCommit().GetCommitter().GetDate(); !date.IsZero() {
			timestamp = date.UTC().Format(time.RFC3339)
		}
		out = append(out, domain.Commit{SHA: commit.GetSHA(), Timestamp: timestamp})
	}
	return out, nil
}

func isNotFound(resp *gh.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var ghErr *gh.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
