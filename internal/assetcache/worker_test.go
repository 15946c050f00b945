package assetcache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var manifest = []string{"./", "./index.html", "./app.js"}

// originServer counts requests per path and fails the ones listed in broken.
type originServer struct {
	mu     sync.Mutex
	hits   map[string]int
	broken map[string]bool
	down   bool
}

func newOrigin() *originServer {
	return &originServer{hits: map[string]int{}, broken: map[string]bool{}}
}

func (o *originServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.hits[r.URL.Path]++
	broken, down := o.broken[r.URL.Path], o.down
	o.mu.Unlock()

	if down || broken {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("body of " + r.URL.Path))
}

func (o *originServer) count(p string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[p]
}

func TestKey(t *testing.T) {
	testCases := map[string]string{
		"./":           "/",
		"/":            "/",
		"":             "/",
		"./index.html": "/index.html",
		"/index.html":  "/index.html",
		"app.js":       "/app.js",
	}
	for in, want := range testCases {
		assert.Equal(t, want, Key(in), in)
	}
}

func TestWorker_InstallStoresManifest(t *testing.T) {
	origin := newOrigin()
	storage := NewCacheStorage()
	w := NewWorker(storage, "qr-mac-v1", manifest, HandlerFetcher{Handler: origin})

	require.NoError(t, w.Install(context.Background()))
	assert.Equal(t, []string{"qr-mac-v1"}, storage.Keys())
	assert.Equal(t, []string{"/", "/app.js", "/index.html"}, storage.Open("qr-mac-v1").paths())

	resp, ok := storage.Match("./index.html")
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "body of /index.html", string(resp.Body))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
}

func TestWorker_InstallIsAllOrNothing(t *testing.T) {
	origin := newOrigin()
	origin.broken["/app.js"] = true
	storage := NewCacheStorage()
	w := NewWorker(storage, "qr-mac-v1", manifest, HandlerFetcher{Handler: origin})

	err := w.Install(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "./app.js")
	assert.False(t, storage.Has("qr-mac-v1"))

	failing := FetcherFunc(func(context.Context, string) (Response, error) {
		return Response{}, errors.New("connection refused")
	})
	w = NewWorker(storage, "qr-mac-v1", manifest, failing)
	assert.Error(t, w.Install(context.Background()))
	assert.Empty(t, storage.Keys())
}

func TestWorker_ReinstallRefreshesCurrentCache(t *testing.T) {
	origin := newOrigin()
	storage := NewCacheStorage()
	w := NewWorker(storage, "qr-mac-v1", manifest, HandlerFetcher{Handler: origin})
	assert.Equal(t, "qr-mac-v1", w.Name())

	require.NoError(t, w.Install(context.Background()))
	require.True(t, storage.Has(w.Name()))
	require.NoError(t, w.Install(context.Background()))

	assert.Equal(t, []string{"qr-mac-v1"}, storage.Keys())
	assert.Equal(t, 2, origin.count("/index.html"))
	resp, ok := storage.Match("/index.html")
	require.True(t, ok)
	assert.Equal(t, "body of /index.html", string(resp.Body))
}

func TestWorker_ActivateRetiresOldVersions(t *testing.T) {
	origin := newOrigin()
	storage := NewCacheStorage()

	require.NoError(t, NewWorker(storage, "qr-mac-v1", manifest, HandlerFetcher{Handler: origin}).Install(context.Background()))
	storage.Open("unrelated")

	w := NewWorker(storage, "qr-mac-v2", manifest, HandlerFetcher{Handler: origin})
	require.NoError(t, w.Install(context.Background()))
	removed := w.Activate()

	assert.ElementsMatch(t, []string{"qr-mac-v1", "unrelated"}, removed)
	assert.Equal(t, []string{"qr-mac-v2"}, storage.Keys())
	assert.Empty(t, w.Activate())
}

func TestWorker_FetchCacheFirst(t *testing.T) {
	origin := newOrigin()
	storage := NewCacheStorage()
	w := NewWorker(storage, "qr-mac-v1", manifest, HandlerFetcher{Handler: origin})
	require.NoError(t, w.Install(context.Background()))
	require.Equal(t, 1, origin.count("/index.html"))

	origin.down = true

	resp, err := w.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/index.html", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, 1, origin.count("/index.html"), "cached asset must not hit the origin")

	// Uncached paths fall back to the origin without being stored.
	resp, err = w.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/api/codes", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, 1, origin.count("/api/codes"))
	_, cached := storage.Match("/api/codes")
	assert.False(t, cached)
}

func TestWorker_FetchNotIntercepted(t *testing.T) {
	w := NewWorker(NewCacheStorage(), "qr-mac-v1", manifest, HandlerFetcher{Handler: newOrigin()})

	_, err := w.Fetch(context.Background(), httptest.NewRequest(http.MethodPost, "/index.html", nil))
	assert.ErrorIs(t, err, ErrNotIntercepted)

	cross := httptest.NewRequest(http.MethodGet, "/", nil)
	cross.URL.Scheme = "https"
	cross.URL.Host = "cdn.example.com"
	_, err = w.Fetch(context.Background(), cross)
	assert.ErrorIs(t, err, ErrNotIntercepted)
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewCacheStorage().Open("v1")
	c.Put("/a", Response{Status: 200, Header: http.Header{}, Body: []byte("abc")})

	resp, ok := c.Match("/a")
	require.True(t, ok)
	resp.Body[0] = 'x'

	again, _ := c.Match("/a")
	assert.Equal(t, "abc", string(again.Body))
}
