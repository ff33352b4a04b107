// Package tokencache provides a small injected TTL cache for short-lived API
// access tokens. It replaces the module-level token globals external-API
// clients tend to accumulate: construct one per process and pass it to the
// clients that need it.
package tokencache

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// LoaderFunc fetches a fresh token. It is called at most once per expiry
// window, regardless of how many goroutines ask concurrently.
type LoaderFunc func(ctx context.Context) (string, error)

// Cache is a single-value token cache with a fixed TTL.
type Cache struct {
	ttl    time.Duration
	loader LoaderFunc
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// New creates a Cache that refreshes through loader every ttl.
func New(ttl time.Duration, loader LoaderFunc) *Cache {
	return &Cache{
		ttl:    ttl,
		loader: loader,
		now:    time.Now,
	}
}

// Get returns the cached token, refreshing it through the loader when expired.
// Concurrent callers during a refresh block until the single load finishes.
func (c *Cache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	token, err := c.loader(ctx)
	if err != nil {
		return "", errors.Wrap(err, "load token")
	}
	c.token = token
	c.expiresAt = c.now().Add(c.ttl)
	return token, nil
}

// Invalidate drops the cached token so the next Get reloads. Call it after an
// authorization failure that suggests the token was revoked early.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
