package assetcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
)

// ErrNotIntercepted is returned by Worker.Fetch for requests the cache does
// not handle: anything but GET, and cross-origin URLs.
var ErrNotIntercepted = errors.New("request not intercepted")

// Fetcher retrieves a resource from the origin.
type Fetcher interface {
	Fetch(ctx context.Context, p string) (Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, p string) (Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, p string) (Response, error) { return f(ctx, p) }

// HandlerFetcher fetches resources by running an in-process handler.
type HandlerFetcher struct {
	Handler http.Handler
}

// Fetch serves GET p through the handler and records the response.
func (f HandlerFetcher) Fetch(ctx context.Context, p string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p, nil)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	rec := &recorder{header: make(http.Header)}
	f.Handler.ServeHTTP(rec, req)
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return Response{Status: rec.status, Header: rec.header, Body: rec.body.Bytes()}, nil
}

type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

// Worker installs a versioned asset manifest, retires old versions and
// answers requests cache-first.
type Worker struct {
	storage *CacheStorage
	name    string
	assets  []string
	origin  Fetcher
}

// NewWorker creates a worker for the cache called name.
func NewWorker(storage *CacheStorage, name string, assets []string, origin Fetcher) *Worker {
	return &Worker{
		storage: storage,
		name:    name,
		assets:  append([]string(nil), assets...),
		origin:  origin,
	}
}

// Name returns the current cache name.
func (w *Worker) Name() string { return w.name }

// Install fetches every manifest asset and stores them together. If any
// asset fails nothing is stored.
func (w *Worker) Install(ctx context.Context) error {
	fetched := make(map[string]Response, len(w.assets))
	for _, asset := range w.assets {
		resp, err := w.origin.Fetch(ctx, Key(asset))
		if err != nil {
			return fmt.Errorf("install %s: fetching %s: %w", w.name, asset, err)
		}
		if !resp.OK() {
			return fmt.Errorf("install %s: fetching %s: status %d", w.name, asset, resp.Status)
		}
		fetched[asset] = resp
	}

	if w.storage.Has(w.name) {
		log.Printf("Offline cache %s already present, refreshing", w.name)
	}
	c := w.storage.Open(w.name)
	for asset, resp := range fetched {
		c.Put(asset, resp)
	}
	log.Printf("Offline cache %s installed with %d assets", w.name, len(fetched))
	return nil
}

// Activate deletes every cache other than the current one and returns the
// names removed.
func (w *Worker) Activate() []string {
	var removed []string
	for _, name := range w.storage.Keys() {
		if name == w.name {
			continue
		}
		if w.storage.Delete(name) {
			log.Printf("Deleting old cache %s", name)
			removed = append(removed, name)
		}
	}
	return removed
}

// Fetch answers r from the cache, falling back to the origin. Fallback
// responses are not stored.
func (w *Worker) Fetch(ctx context.Context, r *http.Request) (Response, error) {
	if !intercepts(r) {
		return Response{}, ErrNotIntercepted
	}
	if resp, ok := w.storage.Match(r.URL.Path); ok {
		return resp, nil
	}
	return w.origin.Fetch(ctx, r.URL.RequestURI())
}

func intercepts(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.URL.IsAbs() && r.URL.Host != r.Host {
		return false
	}
	return true
}
