package maven

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const centralMetadata = `<?xml version="1.0" encoding="UTF-8"?>
<metadata>
  <groupId>team.unnamed</groupId>
  <artifactId>creative-api</artifactId>
  <versioning>
    <latest>1.3.0-SNAPSHOT</latest>
    <release>1.2.0</release>
    <versions>
      <version>1.2.0</version>
      <version>1.3.0-SNAPSHOT</version>
    </versions>
  </versioning>
</metadata>`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", Repository: "maven-public"})
	require.NoError(t, err)
	return c, &hits
}

func TestMetadataURL(t *testing.T) {
	c, err := New(Config{BaseURL: "https://repo.example.com/", Repository: "maven-snapshots"})
	require.NoError(t, err)
	assert.Equal(t,
		"https://repo.example.com/repository/maven-snapshots/team/unnamed/creative-api/maven-metadata.xml",
		c.MetadataURL("team.unnamed", "creative-api"))
}

func TestMetadataParsesVersioning(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repository/maven-public/team/unnamed/creative-api/maven-metadata.xml", r.URL.Path)
		_, _ = w.Write([]byte(centralMetadata))
	})

	v, err := c.Metadata(context.Background(), "team.unnamed", "creative-api")
	require.NoError(t, err)
	assert.Equal(t, "1.3.0-SNAPSHOT", v.Latest)
	assert.Equal(t, "1.2.0", v.Release)
}

func TestMetadataWithoutRelease(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<metadata><versioning><latest>0.1.0-SNAPSHOT</latest></versioning></metadata>`))
	})

	v, err := c.Metadata(context.Background(), "team.unnamed", "scriptable")
	require.NoError(t, err)
	assert.Equal(t, "0.1.0-SNAPSHOT", v.Latest)
	assert.Empty(t, v.Release)
}

func TestMetadataIsMemoized(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(centralMetadata))
	})

	for i := 0; i < 3; i++ {
		_, err := c.Metadata(context.Background(), "team.unnamed", "creative-api")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestMetadataParseFailureCarriesContext(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<metadata><versioning></versioning></metadata>`))
	})

	_, err := c.Metadata(context.Background(), "team.unnamed", "broken")
	require.Error(t, err)

	var metaErr *MetadataError
	require.True(t, errors.As(err, &metaErr))
	assert.Equal(t, "team.unnamed", metaErr.GroupID)
	assert.Equal(t, "broken", metaErr.ArtifactID)
	assert.Contains(t, metaErr.Body, "<versioning>")
	assert.ErrorIs(t, err, errNoLatest)

	// failures are not memoized
	_, _ = c.Metadata(context.Background(), "team.unnamed", "broken")
	assert.Equal(t, int32(2), hits.Load())
}

func TestMetadataStatusFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})

	_, err := c.Metadata(context.Background(), "team.unnamed", "ghost")
	var metaErr *MetadataError
	require.True(t, errors.As(err, &metaErr))
	assert.Equal(t, http.StatusNotFound, metaErr.StatusCode)
	assert.Equal(t, "missing", metaErr.Body)
}

func TestCancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-release
		_, _ = w.Write([]byte(centralMetadata))
	})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Metadata(ctxA, "team.unnamed", "creative-api")
		errA <- err
	}()
	<-started

	type result struct {
		v   Versioning
		err error
	}
	resB := make(chan result, 1)
	go func() {
		v, err := c.Metadata(context.Background(), "team.unnamed", "creative-api")
		resB <- result{v, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(release)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "1.2.0", b.v.Release)
	assert.Equal(t, int32(1), hits.Load())

	// the shared fetch completed and was memoized
	v, err := c.Metadata(context.Background(), "team.unnamed", "creative-api")
	require.NoError(t, err)
	assert.Equal(t, "1.3.0-SNAPSHOT", v.Latest)
	assert.Equal(t, int32(1), hits.Load())
}
