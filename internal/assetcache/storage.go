// Package assetcache keeps the static shell of the web client available
// when the origin handler cannot serve it.
package assetcache

import (
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/patrickmn/go-cache"
)

// Response is a stored HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the response has a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

func (r Response) clone() Response {
	return Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   append([]byte(nil), r.Body...),
	}
}

// Cache is one named generation of cached assets keyed by request path.
type Cache struct {
	name    string
	entries *cache.Cache
}

// Put stores resp under the normalized form of p.
func (c *Cache) Put(p string, resp Response) {
	c.entries.Set(Key(p), resp.clone(), cache.NoExpiration)
}

// Match returns the response stored for p.
func (c *Cache) Match(p string) (Response, bool) {
	v, found := c.entries.Get(Key(p))
	if !found {
		return Response{}, false
	}
	return v.(Response).clone(), true
}

// paths lists the stored keys in sorted order.
func (c *Cache) paths() []string {
	items := c.entries.Items()
	out := make([]string, 0, len(items))
	for k := range items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CacheStorage holds every named cache.
type CacheStorage struct {
	mu     sync.Mutex
	caches *cache.Cache
}

// NewCacheStorage creates empty storage.
func NewCacheStorage() *CacheStorage {
	return &CacheStorage{caches: cache.New(cache.NoExpiration, 0)}
}

// Open returns the cache called name, creating it if needed.
func (s *CacheStorage) Open(name string) *Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, found := s.caches.Get(name); found {
		return v.(*Cache)
	}
	c := &Cache{name: name, entries: cache.New(cache.NoExpiration, 0)}
	s.caches.Set(name, c, cache.NoExpiration)
	return c
}

// Has reports whether a cache called name exists.
func (s *CacheStorage) Has(name string) bool {
	_, found := s.caches.Get(name)
	return found
}

// Keys lists the cache names in sorted order.
func (s *CacheStorage) Keys() []string {
	items := s.caches.Items()
	out := make([]string, 0, len(items))
	for k := range items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Delete removes the cache called name and reports whether it existed.
func (s *CacheStorage) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.caches.Get(name); !found {
		return false
	}
	s.caches.Delete(name)
	return true
}

// Match looks p up in every cache, oldest name first.
func (s *CacheStorage) Match(p string) (Response, bool) {
	for _, name := range s.Keys() {
		v, found := s.caches.Get(name)
		if !found {
			continue
		}
		if resp, ok := v.(*Cache).Match(p); ok {
			return resp, true
		}
	}
	return Response{}, false
}

// Key normalizes a manifest entry or request path: "./" and "/" are the same
// resource, as are "./app.js" and "/app.js".
func Key(p string) string {
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}
