package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dugoutdata/dugout/internal/metrics"
)

// DefaultCleanupInterval is how often expired entries are purged.
const DefaultCleanupInterval = 5 * time.Minute

// Entry is one memoized result.
type Entry struct {
	Key        string
	Value      any
	InsertedAt time.Time
	ExpiresAt  time.Time
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits        int64 `json:"hits" yaml:"hits"`
	Misses      int64 `json:"misses" yaml:"misses"`
	FetchErrors int64 `json:"fetchErrors" yaml:"fetchErrors"`
	Coalesced   int64 `json:"coalesced" yaml:"coalesced"`
	Entries     int   `json:"entries" yaml:"entries"`
}

// Options configures a Cache.
type Options struct {
	CleanupInterval time.Duration
	Logger          *logging.Logger
}

// Cache memoizes fetch results by canonical key. It is process-local and
// holds nothing across restarts.
type Cache struct {
	Clock  func() time.Time
	Logger *logging.Logger

	entries *gocache.Cache
	flight  singleflight.Group

	hits        atomic.Int64
	misses      atomic.Int64
	fetchErrors atomic.Int64
	coalesced   atomic.Int64
}

// New creates an empty cache whose janitor runs every CleanupInterval.
func New(opts Options) *Cache {
	interval := opts.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &Cache{
		Logger:  opts.Logger,
		entries: gocache.New(gocache.NoExpiration, interval),
	}
}

// Lookup returns the stored value for key while it is fresh.
func (c *Cache) Lookup(key string) (Entry, bool) {
	raw, found := c.entries.Get(key)
	if !found {
		return Entry{}, false
	}
	entry, ok := raw.(Entry)
	if !ok || !c.now().Before(entry.ExpiresAt) {
		return Entry{}, false
	}
	return entry, true
}

// Store replaces any entry for key.
func (c *Cache) Store(key string, value any, ttl time.Duration) Entry {
	now := c.now()
	entry := Entry{Key: key, Value: value, InsertedAt: now, ExpiresAt: now.Add(ttl)}
	c.entries.Set(key, entry, ttl)
	metrics.SetCacheEntries(c.entries.ItemCount())
	return entry
}

// Delete drops the entry for key, if any.
func (c *Cache) Delete(key string) {
	c.entries.Delete(key)
}

// Flush drops every entry. Counters are kept.
func (c *Cache) Flush() {
	c.entries.Flush()
	metrics.SetCacheEntries(0)
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		FetchErrors: c.fetchErrors.Load(),
		Coalesced:   c.coalesced.Load(),
		Entries:     c.entries.ItemCount(),
	}
}

// Wrap memoizes fetch under namespace for ttl. The returned function behaves
// like fetch except that a repeated call with equivalent params inside ttl
// returns the stored value without calling fetch. Errors are never stored
// and leave any existing entry untouched. Concurrent misses on one key share
// a single call to fetch.
func Wrap[P any, T any](c *Cache, namespace string, ttl time.Duration, fetch func(context.Context, P) (T, error)) func(context.Context, P) (T, error) {
	return func(ctx context.Context, params P) (T, error) {
		var zero T

		key, err := Key(namespace, params)
		if err != nil {
			c.logWarn("Cache key unavailable, calling through", zap.String("namespace", namespace), zap.Error(err))
			return fetch(ctx, params)
		}

		if entry, ok := c.Lookup(key); ok {
			if value, ok := entry.Value.(T); ok {
				c.hits.Add(1)
				metrics.RecordCacheLookup(namespace, "hit")
				return value, nil
			}
		}

		c.misses.Add(1)
		metrics.RecordCacheLookup(namespace, "miss")

		result := c.flight.DoChan(key, func() (any, error) {
			// The flight outlives the first caller; later joiners may still want the value.
			value, err := fetch(context.WithoutCancel(ctx), params)
			if err != nil {
				c.fetchErrors.Add(1)
				metrics.RecordCacheFetchError(namespace)
				return nil, err
			}
			c.Store(key, value, ttl)
			c.logDebug("Cached fetch result",
				zap.String("key", key),
				zap.Duration("ttl", ttl))
			return value, nil
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-result:
			if res.Shared {
				c.coalesced.Add(1)
				metrics.RecordCacheLookup(namespace, "coalesced")
			}
			if res.Err != nil {
				return zero, res.Err
			}
			value, ok := res.Val.(T)
			if !ok {
				return zero, fmt.Errorf("cache %s: unexpected value type %T", namespace, res.Val)
			}
			return value, nil
		}
	}
}

func (c *Cache) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func (c *Cache) logDebug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}

func (c *Cache) logWarn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}
