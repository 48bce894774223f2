package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unnamedteam/docserver/internal/domain"
)

var creative = domain.Repository{Name: "creative", FullName: "unnamed/creative"}

func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/api", Token: "secret"})
	require.NoError(t, err)
	return c, srv
}

func TestListRepositoriesFollowsPages(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/api/orgs/unnamed/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"name":"archived","full_name":"unnamed/archived","archived":true}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/orgs/unnamed/repos?page=2>; rel="next"`, srvURL))
		fmt.Fprint(w, `[{"name":"creative","full_name":"unnamed/creative","description":"Creative API",
			"stargazers_count":42,"private":false,"html_url":"https://github.com/unnamed/creative","default_branch":"main"}]`)
	})
	c, srv := newTestClient(t, mux)
	srvURL = srv.URL

	repos, err := c.ListRepositories(context.Background(), "unnamed")
	require.NoError(t, err)
	require.Len(t, repos, 2)

	assert.Equal(t, domain.Repository{
		Name:          "creative",
		FullName:      "unnamed/creative",
		Description:   "Creative API",
		Stars:         42,
		HTMLURL:       "https://github.com/unnamed/creative",
		DefaultBranch: "main",
	}, repos[0])
	assert.True(t, repos[1].Archived)
}

func TestListReleasesSkipsDrafts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/repos/unnamed/creative/releases", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"tag_name":"2.1.0","name":"next","draft":true},
			{"tag_name":"2.0.0","name":"Two"},
			{"tag_name":"1.0.0","name":"One"}
		]`)
	})
	c, _ := newTestClient(t, mux)

	releases, err := c.ListReleases(context.Background(), creative)
	require.NoError(t, err)
	assert.Equal(t, []domain.Release{{TagName: "2.0.0", Name: "Two"}, {TagName: "1.0.0", Name: "One"}}, releases)
}

func TestListDirectory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/repos/unnamed/creative/contents/docs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1.0.0", r.URL.Query().Get("ref"))
		fmt.Fprint(w, `[
			{"type":"file","name":"readme.md","path":"docs/readme.md","download_url":"https://raw.example.com/readme.md"},
			{"type":"dir","name":"guide","path":"docs/guide"},
			{"type":"symlink","name":"link","path":"docs/link"}
		]`)
	})
	c, _ := newTestClient(t, mux)

	entries, err := c.ListDirectory(context.Background(), creative, "docs", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, []domain.Entry{
		{Name: "readme.md", Path: "docs/readme.md", Type: domain.EntryFile, RawURL: "https://raw.example.com/readme.md", Ref: "1.0.0"},
		{Name: "guide", Path: "docs/guide", Type: domain.EntryDir, Ref: "1.0.0"},
	}, entries)
}

func TestListDirectoryNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/repos/unnamed/creative/contents/docs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	mux.HandleFunc("/api/repos/unnamed/creative/contents/README.md", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"file","name":"README.md","path":"README.md","encoding":"base64","content":""}`)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.ListDirectory(context.Background(), creative, "docs", "1.0.0")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.ListDirectory(context.Background(), creative, "README.md", "1.0.0")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListDirectoryServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/repos/unnamed/creative/contents/docs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"boom"}`)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.ListDirectory(context.Background(), creative, "docs", "1.0.0")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "unnamed/creative@1.0.0:docs")
}

func TestDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/readme.md", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "# Creative\n")
	})
	c, srv := newTestClient(t, mux)

	text, err := c.Download(context.Background(), domain.Entry{Path: "docs/readme.md", RawURL: srv.URL + "/raw/readme.md"})
	require.NoError(t, err)
	assert.Equal(t, "# Creative\n", text)

	_, err = c.Download(context.Background(), domain.Entry{Path: "docs/gone.md", RawURL: srv.URL + "/raw/gone.md"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.Download(context.Background(), domain.Entry{Path: "docs/none.md"})
	assert.Error(t, err)
}

func TestCommitHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/repos/unnamed/creative/commits", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1.0.0", q.Get("sha"))
		assert.Equal(t, "docs/readme.md", q.Get("path"))
		assert.Equal(t, "1", q.Get("per_page"))
		fmt.Fprint(w, `[{"sha":"abc123","commit":{"committer":{"date":"2024-03-01T10:00:00+02:00"}}}]`)
	})
	c, _ := newTestClient(t, mux)

	commits, err := c.CommitHistory(context.Background(), creative, "docs/readme.md", "1.0.0", 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Commit{{SHA: "abc123", Timestamp: "2024-03-01T08:00:00Z"}}, commits)
}

func TestStaticToken(t *testing.T) {
	token, err := StaticToken("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = StaticToken("").Token(context.Background())
	assert.Error(t, err)
}

func TestNewAppAuthRejectsInvalidKey(t *testing.T) {
	_, err := NewAppAuth(nil, 1, []byte("not a key"), 2)
	assert.Error(t, err)
}

func TestDownloadRejectsOversizedFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/raw/huge.md", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", maxDownloadSize+1)))
	})
	mux.HandleFunc("/raw/exact.md", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", maxDownloadSize)))
	})
	c, srv := newTestClient(t, mux)

	_, err := c.Download(context.Background(), domain.Entry{Path: "docs/huge.md", RawURL: srv.URL + "/raw/huge.md"})
	assert.ErrorIs(t, err, ErrTooLarge)

	text, err := c.Download(context.Background(), domain.Entry{Path: "docs/exact.md", RawURL: srv.URL + "/raw/exact.md"})
	require.NoError(t, err)
	assert.Len(t, text, maxDownloadSize)
}
