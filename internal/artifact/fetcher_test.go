package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-churn/backend/internal/classifier"
	"bank-churn/backend/internal/store"
)

const (
	modelBody = `{"format":"dense-v1","input_dim":1,"layers":[{"activation":"sigmoid","weights":[[1]],"bias":[0]}]}`
	kerasBody = "PK\x03\x04 keras zip bytes"
)

func serveBody(t *testing.T, hits *int32, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func modelServer(t *testing.T, hits *int32) *httptest.Server {
	return serveBody(t, hits, modelBody)
}

func TestFetchIsIdempotent(t *testing.T) {
	var hits int32
	srv := modelServer(t, &hits)
	path := filepath.Join(t.TempDir(), "data", "model.json")

	fetcher, err := NewFetcher(Config{URL: srv.URL, Path: path}, nil)
	require.NoError(t, err)

	first, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, first.Downloaded)
	assert.Equal(t, int64(len(modelBody)), first.Size)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, modelBody, string(data))

	second, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Downloaded)
	assert.Equal(t, first.SHA256, second.SHA256)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchSkipsNetworkWhenPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(modelBody), 0o644))

	fetcher, err := NewFetcher(Config{URL: "http://127.0.0.1:1/unreachable", Path: path}, nil)
	require.NoError(t, err)
	artifact, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, artifact.Downloaded)
	assert.Equal(t, path, artifact.Path)
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}},
		{"html page", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html>virus scan warning</html>"))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			path := filepath.Join(t.TempDir(), "model.json")

			fetcher, err := NewFetcher(Config{URL: srv.URL, Path: path}, nil)
			require.NoError(t, err)
			_, err = fetcher.Fetch(context.Background())
			assert.ErrorIs(t, err, ErrModelUnavailable)

			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr), "no partial model at the final path")
		})
	}
}

func TestFetchUnreachable(t *testing.T) {
	fetcher, err := NewFetcher(Config{URL: "http://127.0.0.1:1/model", Path: filepath.Join(t.TempDir(), "m.json")}, nil)
	require.NoError(t, err)
	_, err = fetcher.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestFetchWithRegistry(t *testing.T) {
	var hits int32
	srv := modelServer(t, &hits)
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")

	db, err := store.Open(filepath.Join(dir, "registry.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fetcher, err := NewFetcher(Config{URL: srv.URL, Path: path}, db)
	require.NoError(t, err)

	first, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	row, err := db.GetArtifact(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, first.SHA256, row.SHA256)

	_, err = fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// A truncated cache no longer matches the registry and is replaced.
	require.NoError(t, os.WriteFile(path, []byte(`{"format"`), 0o644))
	repaired, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, repaired.Downloaded)
	assert.Equal(t, first.SHA256, repaired.SHA256)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchRegistersExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, []byte(modelBody), 0o644))

	db, err := store.Open(filepath.Join(dir, "registry.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fetcher, err := NewFetcher(Config{URL: "http://127.0.0.1:1/model", Path: path}, db)
	require.NoError(t, err)
	artifact, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)

	row, err := db.GetArtifact("http://127.0.0.1:1/model")
	require.NoError(t, err)
	assert.Equal(t, artifact.SHA256, row.SHA256)
}

func TestNewFetcherDefaults(t *testing.T) {
	_, err := NewFetcher(Config{URL: "http://example.com"}, nil)
	assert.Error(t, err)

	fetcher, err := NewFetcher(Config{Path: "data/model.json"}, nil)
	require.NoError(t, err)
	assert.Empty(t, fetcher.URL())
	assert.Equal(t, filepath.Clean("data/model.json"), fetcher.Path())
}

func TestFetchRejectsUnloadableDownload(t *testing.T) {
	var hits int32
	srv := serveBody(t, &hits, kerasBody)
	dir := t.TempDir()
	path := filepath.Join(dir, "churn_model.json")

	fetcher, err := NewFetcher(Config{URL: srv.URL, Path: path, Validate: classifier.ValidateDense}, nil)
	require.NoError(t, err)
	_, err = fetcher.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "unloadable model must not be installed")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary download must be removed")

	// A later attempt goes back to the network instead of reusing anything.
	_, err = fetcher.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchReplacesUnloadableCache(t *testing.T) {
	var hits int32
	srv := modelServer(t, &hits)
	path := filepath.Join(t.TempDir(), "churn_model.json")
	require.NoError(t, os.WriteFile(path, []byte(kerasBody), 0o644))

	fetcher, err := NewFetcher(Config{URL: srv.URL, Path: path, Validate: classifier.ValidateDense}, nil)
	require.NoError(t, err)
	artifact, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, artifact.Downloaded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, modelBody, string(data))
}

func TestFetchWithoutURL(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		fetcher, err := NewFetcher(Config{Path: filepath.Join(t.TempDir(), "m.json")}, nil)
		require.NoError(t, err)
		_, err = fetcher.Fetch(context.Background())
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.ErrorIs(t, err, ErrNoSource)
	})
	t.Run("unloadable file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "m.json")
		require.NoError(t, os.WriteFile(path, []byte(kerasBody), 0o644))
		fetcher, err := NewFetcher(Config{Path: path, Validate: classifier.ValidateDense}, nil)
		require.NoError(t, err)
		_, err = fetcher.Fetch(context.Background())
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})
	t.Run("local file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "m.json")
		require.NoError(t, os.WriteFile(path, []byte(modelBody), 0o644))
		fetcher, err := NewFetcher(Config{Path: path, Validate: classifier.ValidateDense}, nil)
		require.NoError(t, err)
		artifact, err := fetcher.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.ToSlash(path), artifact.Identifier)
	})
}
