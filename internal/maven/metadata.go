package maven

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Versioning is the versioning block of a maven-metadata.xml document
type Versioning struct {
	Latest string
	// Release is empty when the artifact has never been released
	Release string
}

// MetadataError reports an artifact whose metadata could not be fetched or parsed
type MetadataError struct {
	GroupID    string
	ArtifactID string
	StatusCode int
	Body       string
	Err        error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("failed to read versioning for %s:%s (status %d): %v: body: %s",
		e.GroupID, e.ArtifactID, e.StatusCode, e.Err, e.Body)
}

func (e *MetadataError) Unwrap() error { return e.Err }

var errNoLatest = errors.New("metadata has no <latest> version")

// Config holds client configuration
type Config struct {
	BaseURL    string
	Repository string
	CacheSize  int

	// FetchTimeout bounds one metadata download. Downloads are shared by
	// concurrent callers and do not stop when one of them gives up.
	FetchTimeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client fetches artifact versioning from a Nexus-hosted maven repository.
// Results are memoized for the lifetime of the client.
type Client struct {
	baseURL    string
	repository string
	httpClient   *http.Client
	fetchTimeout time.Duration
	memo         *lru.Cache[string, Versioning]
	flights      singleflight.Group
	logger       *slog.Logger
}

// New creates a metadata client
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("maven base URL is required")
	}
	if cfg.Repository == "" {
		return nil, errors.New("maven repository is required")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	memo, err := lru.New[string, Versioning](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		repository:   cfg.Repository,
		httpClient:   cfg.HTTPClient,
		fetchTimeout: cfg.FetchTimeout,
		memo:         memo,
		logger:       cfg.Logger,
	}, nil
}

// Metadata returns the versioning of groupID:artifactID
func (c *Client) Metadata(ctx context.Context, groupID, artifactID string) (Versioning, error) {
	key := groupID + ":" + artifactID
	if v, ok := c.memo.Get(key); ok {
		return v, nil
	}

	ch := c.flights.DoChan(key, func() (any, error) {
		if v, ok := c.memo.Get(key); ok {
			return v, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		v, err := c.fetch(fetchCtx, groupID, artifactID)
		if err != nil {
			return Versioning{}, err
		}
		c.memo.Add(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return Versioning{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Versioning{}, res.Err
		}
		return res.Val.(Versioning), nil
	}
}

// MetadataURL returns the location of the maven-metadata.xml of an artifact
func (c *Client) MetadataURL(groupID, artifactID string) string {
	location := strings.ReplaceAll(groupID, ".", "/") + "/" + artifactID
	return fmt.Sprintf("%s/repository/%s/%s/maven-metadata.xml", c.baseURL, c.repository, location)
}

type metadataDocument struct {
	XMLName    xml.Name `xml:"metadata"`
	Versioning struct {
		Latest  string `xml:"latest"`
		Release string `xml:"release"`
	} `xml:"versioning"`
}

func (c *Client) fetch(ctx context.Context, groupID, artifactID string) (Versioning, error) {
	url := c.MetadataURL(groupID, artifactID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Versioning{}, fmt.Errorf("failed to create request for %s:%s: %w", groupID, artifactID, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Versioning{}, fmt.Errorf("failed to fetch versioning for %s:%s: %w", groupID, artifactID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Versioning{}, fmt.Errorf("failed to read versioning for %s:%s: %w", groupID, artifactID, err)
	}

	fail := func(err error) (Versioning, error) {
		return Versioning{}, &MetadataError{
			GroupID:    groupID,
			ArtifactID: artifactID,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	var doc metadataDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return fail(err)
	}

	latest := strings.TrimSpace(doc.Versioning.Latest)
	if latest == "" {
		return fail(errNoLatest)
	}

	v := Versioning{
		Latest:  latest,
		Release: strings.TrimSpace(doc.Versioning.Release),
	}
	c.logger.Debug("fetched maven versioning",
		"group_id", groupID,
		"artifact_id", artifactID,
		"latest", v.Latest,
		"release", v.Release,
	)
	return v, nil
}
