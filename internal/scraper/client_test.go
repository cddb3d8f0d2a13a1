package scraper

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/offerscout/internal/cache"
)

type fetchObservation struct {
	kind   string
	cached bool
	err    error
}

type recorderStub struct {
	mu  sync.Mutex
	obs []fetchObservation
}

func (r *recorderStub) ObserveFetch(kind string, _ time.Duration, cached bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, fetchObservation{kind, cached, err})
}

func testClient(t *testing.T, pageCache *cache.Cache) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RatePerSecond = 0
	cfg.MaxRetries = 2
	cfg.Timeout = 5 * time.Second
	c := NewClient(cfg, pageCache)
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func TestClient_DecodesCompressedBodies(t *testing.T) {
	const body = "<html><span id=\"productTitle\">圧縮</span></html>"

	tests := []struct {
		name     string
		encoding string
		encode   func([]byte) []byte
	}{
		{"plain", "", func(b []byte) []byte { return b }},
		{"gzip", "gzip", func(b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		}},
		{"brotli", "br", func(b []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.NotEmpty(t, r.Header.Get("User-Agent"))
				assert.Contains(t, r.Header.Get("Accept-Language"), "ja-JP")
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				_, _ = w.Write(tt.encode([]byte(body)))
			}))
			defer srv.Close()

			got, err := testClient(t, nil).Fetch(context.Background(), KindDetail, srv.URL)
			require.NoError(t, err)
			assert.Equal(t, body, got)
		})
	}
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient(t, nil).Fetch(context.Background(), KindOffers, srv.URL)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	got, err := testClient(t, nil).Fetch(context.Background(), KindDetail, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestClient_RobotCheckIsBlocked(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`<form action="/errors/validateCaptcha"></form>`))
	}))
	defer srv.Close()

	_, err := testClient(t, nil).Fetch(context.Background(), KindDetail, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestClient_UsesCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("page"))
	}))
	defer srv.Close()

	pageCache, err := cache.New("")
	require.NoError(t, err)
	rec := &recorderStub{}
	client := testClient(t, pageCache).WithRecorder(rec)

	for i := 0; i < 3; i++ {
		got, err := client.Fetch(context.Background(), KindDetail, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "page", got)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	require.Len(t, rec.obs, 3)
	assert.False(t, rec.obs[0].cached)
	assert.True(t, rec.obs[1].cached)
	assert.True(t, rec.obs[2].cached)
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(t, nil).Fetch(ctx, KindDetail, srv.URL)
	assert.Error(t, err)
}

func TestIsBlocked(t *testing.T) {
	assert.True(t, IsBlocked("Type the characters you see in this image"))
	assert.True(t, IsBlocked("画像に表示されている文字を入力してください"))
	assert.False(t, IsBlocked("<html>normal page</html>"))
}
