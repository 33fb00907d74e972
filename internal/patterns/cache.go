package patterns

import (
	"context"
	"time"

	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/store"

	"github.com/patrickmn/go-cache"
)

// DefaultCacheTTL bounds how long patterns learned by another process stay
// invisible to suggestions
const (
	DefaultCacheTTL     = 30 * time.Second
	defaultCacheCleanup = time.Minute
)

// Cache keeps each client's active patterns in memory between suggestion calls
type Cache struct {
	entries *cache.Cache
}

// NewCache creates a cache whose entries expire after ttl
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{entries: cache.New(ttl, defaultCacheCleanup)}
}

func cacheKey(clientID string) string {
	return "patterns-" + clientID
}

// Active returns the client's active patterns, loading them through q on a miss
func (c *Cache) Active(ctx context.Context, q store.Tx, clientID string) ([]*models.LearnedPattern, error) {
	if v, found := c.entries.Get(cacheKey(clientID)); found {
		return v.([]*models.LearnedPattern), nil
	}

	patterns, err := q.ActivePatterns(ctx, clientID)
	if err != nil {
		return nil, err
	}
	c.entries.SetDefault(cacheKey(clientID), patterns)
	return patterns, nil
}

// Put replaces the client's entry with patterns freshly read from the store
func (c *Cache) Put(clientID string, patterns []*models.LearnedPattern) {
	c.entries.SetDefault(cacheKey(clientID), patterns)
}

// Invalidate drops the client's entry; call after a committed learn
func (c *Cache) Invalidate(clientID string) {
	c.entries.Delete(cacheKey(clientID))
}

// Len reports the number of cached clients
func (c *Cache) Len() int {
	return c.entries.ItemCount()
}
