package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lherron/navmerge/internal/catalog"
	"github.com/lherron/navmerge/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const layerJSON = `{"name": "APT29 (G0016)", "techniques": []}`

func fastSession(opts ...SessionOption) *Session {
	return NewSession(append([]SessionOption{WithBackoff(time.Millisecond)}, opts...)...)
}

func TestFetch_HappyPath(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(layerJSON))
	}))
	defer ts.Close()

	body, err := fastSession().Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.JSONEq(t, layerJSON, string(body))
}

func TestFetch_NotFound(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer ts.Close()

	_, err := fastSession().Fetch(context.Background(), ts.URL)
	assert.ErrorIs(t, err, ErrNotPublished)
	assert.Equal(t, int32(1), calls.Load(), "404 must not be retried")
}

func TestFetch_HTMLIsNotJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<!DOCTYPE html><html></html>"))
	}))
	defer ts.Close()

	_, err := fastSession().Fetch(context.Background(), ts.URL)
	assert.ErrorIs(t, err, ErrNotJSON)
}

func TestFetch_InvalidJSONBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("{truncated"))
	}))
	defer ts.Close()

	_, err := fastSession().Fetch(context.Background(), ts.URL)
	assert.ErrorIs(t, err, ErrNotJSON)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(layerJSON))
	}))
	defer ts.Close()

	body, err := fastSession(WithRetries(2)).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := fastSession(WithRetries(1)).Fetch(context.Background(), ts.URL)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := fastSession(WithRetries(3)).Fetch(context.Background(), ts.URL)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.False(t, httpErr.Temporary())
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_ContextCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSession(WithRetries(5), WithBackoff(time.Hour)).Fetch(ctx, ts.URL)
	assert.Error(t, err)
}

func TestWithHTTPClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	s := NewSession(WithHTTPClient(hc), WithTimeout(2*time.Second))
	assert.Same(t, hc, s.http)
	assert.Equal(t, 2*time.Second, hc.Timeout)
}

func TestLayerURLAndPath(t *testing.T) {
	assert.Equal(t,
		"https://attack.mitre.org/groups/G0016/G0016-enterprise-layer.json",
		LayerURL("https://attack.mitre.org/", catalog.KindGroups, "G0016", "enterprise"))
	assert.Equal(t,
		filepath.Join("layers", "mobile", "software", "S0316.json"),
		LayerPath("layers", "mobile", catalog.KindSoftware, "S0316"))
}

func TestPrepareRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "layers")

	var buf bytes.Buffer
	require.NoError(t, PrepareRoot(root, false, logging.New(&buf, logging.LevelInfo)))
	assert.Contains(t, buf.String(), "folder created")
	for _, domain := range catalog.Domains {
		assert.DirExists(t, filepath.Join(root, domain, catalog.KindGroups))
		assert.DirExists(t, filepath.Join(root, domain, catalog.KindSoftware))
	}

	err := PrepareRoot(root, false, nil)
	assert.ErrorIs(t, err, ErrRootExists)

	assert.NoError(t, PrepareRoot(root, true, nil))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	assert.Error(t, PrepareRoot(file, true, nil))
}

func TestDownloaderDownloadAll(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/groups/G0016/G0016-enterprise-layer.json",
			"/software/S0316/S0316-mobile-layer.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(layerJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	root := filepath.Join(t.TempDir(), "layers")
	require.NoError(t, PrepareRoot(root, false, nil))

	var buf bytes.Buffer
	log := logging.New(&buf, logging.LevelInfo)
	d := NewDownloader(fastSession(WithLogger(log)), root, ts.URL, log)

	stats, err := d.DownloadAll(context.Background(), []catalog.Entry{
		{ID: "G0016", Kind: catalog.KindGroups, Domains: []string{"enterprise"}},
		{ID: "S0316", Kind: catalog.KindSoftware, Domains: []string{"enterprise", "mobile"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Planned[catalog.KindGroups])
	assert.Equal(t, 1, stats.Planned[catalog.KindSoftware])
	assert.Equal(t, 1, stats.Downloaded[catalog.KindGroups])
	assert.Equal(t, 0, stats.Downloaded[catalog.KindSoftware])
	assert.Equal(t, 2, stats.Files)

	assert.FileExists(t, LayerPath(root, "enterprise", catalog.KindGroups, "G0016"))
	assert.FileExists(t, LayerPath(root, "mobile", catalog.KindSoftware, "S0316"))
	assert.NoFileExists(t, LayerPath(root, "enterprise", catalog.KindSoftware, "S0316"))

	out := buf.String()
	assert.Contains(t, out, "1 Groups and 1 Software layers are going to be downloaded.")
	assert.Contains(t, out, "An error occurred while downloading S0316's enterprise layer")
	assert.Contains(t, out, "0/1 Software and 1/1 Groups Navigator layers were entirely downloaded.")
}
