// Package pagecache memoizes one run's paginated HTTP responses so sibling
// policies hitting the same forge endpoint (e.g. two github/release
// policies over the same org) don't double-fetch a page. It is a pure
// performance supplement: a cache miss always falls through to a real
// fetch, so it never changes observable pagination semantics.
package pagecache

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/zeebo/blake3"
)

// Entry is one cached response: status, raw body, and the parsed
// `Link: rel="next"` URL (empty if this was the last page).
type Entry struct {
	Status   int
	Body     []byte
	NextLink string
}

// Cache wraps a ristretto instance keyed by a blake3 digest of the request
// identity (method, URL, and an auth fingerprint so two credentials never
// share a cached response).
type Cache struct {
	c *ristretto.Cache[string, Entry]
}

// New builds a cache sized for one run's worth of pagination traffic.
// maxCost bounds total cached bytes; a small run-scoped budget (the
// default here, 32 MiB) is enough to avoid most duplicate page fetches
// without risking memory pressure on long-running scheduled invocations.
func New() (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters: 1e5,
		MaxCost:     32 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}
	return &Cache{c: c}, nil
}

// Key derives the cache key for a request. authFingerprint should be a
// stable, non-secret identifier for the credential in use (e.g. a hash of
// the token), never the credential itself.
func Key(method, url, authFingerprint string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(method))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(url))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(authFingerprint))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (c *Cache) Get(key string) (Entry, bool) {
	if c == nil || c.c == nil {
		return Entry{}, false
	}
	return c.c.Get(key)
}

func (c *Cache) Set(key string, e Entry) {
	if c == nil || c.c == nil {
		return
	}
	c.c.SetWithTTL(key, e, int64(len(e.Body)), 0)
}

func (c *Cache) Close() {
	if c != nil && c.c != nil {
		c.c.Close()
	}
}
