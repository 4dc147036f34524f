package session

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dideher/secondments/pkg/observability"
)

// CachedStore is a read-through decorator over a Store. Hits on the hot path
// (one lookup per authenticated request) skip the Redis round trip; writes
// and deletes invalidate so the cache never outlives the backend entry by
// more than its own short TTL.
type CachedStore struct {
	backend Store
	cache   *expirable.LRU[string, *Session]
	metrics *observability.Metrics
}

// NewCachedStore wraps a backend store with an in-process LRU holding up to
// size entries for at most ttl
func NewCachedStore(backend Store, size int, ttl time.Duration, metrics *observability.Metrics) *CachedStore {
	return &CachedStore{
		backend: backend,
		cache:   expirable.NewLRU[string, *Session](size, nil, ttl),
		metrics: metrics,
	}
}

func (c *CachedStore) Create(ctx context.Context, userID int64, username string) (*Session, error) {
	sess, err := c.backend.Create(ctx, userID, username)
	if err != nil {
		return nil, err
	}
	c.cache.Add(sess.Key, sess)
	return sess, nil
}

func (c *CachedStore) Get(ctx context.Context, key string) (*Session, error) {
	if sess, ok := c.cache.Get(key); ok && !sess.Expired() {
		if c.metrics != nil {
			c.metrics.SessionCacheHitsTotal.Inc()
		}
		return sess, nil
	}
	if c.metrics != nil {
		c.metrics.SessionCacheMissesTotal.Inc()
	}

	sess, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		c.cache.Add(key, sess)
	}
	return sess, nil
}

func (c *CachedStore) Save(ctx context.Context, sess *Session) error {
	if err := c.backend.Save(ctx, sess); err != nil {
		return err
	}
	c.cache.Add(sess.Key, sess)
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, key string) error {
	c.cache.Remove(key)
	return c.backend.Delete(ctx, key)
}

// Exists consults the backend directly: the cache may hold entries the
// backend has already expired, and the orphan sweep needs the truth.
func (c *CachedStore) Exists(ctx context.Context, key string) (bool, error) {
	return c.backend.Exists(ctx, key)
}
