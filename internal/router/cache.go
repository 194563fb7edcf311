package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/khanglvm/tool-optimizer-mcp/internal/clock"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Cache defaults.
const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 1000
)

// DecisionCache stores routing decisions. Implementations never surface
// errors: a failed lookup is a miss and a failed store is dropped.
type DecisionCache interface {
	Get(ctx context.Context, key string) (model.RoutingDecision, bool)
	Set(ctx context.Context, key string, d model.RoutingDecision)
	// DeleteTool drops every decision cached for tool and returns how many
	// were removed.
	DeleteTool(ctx context.Context, tool string) int
	Stats() CacheStats
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Backend   string `json:"backend"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Evictions int64  `json:"evictions"`
	Size      int    `json:"size"`
	Errors    int64  `json:"errors,omitempty"`
}

// CacheKey derives the cache key of a tool under a context fingerprint.
// The tool name is kept as a readable prefix so decisions can be
// invalidated per tool.
func CacheKey(tool, fingerprint string) string {
	return fmt.Sprintf("%s:%016x", tool, xxhash.Sum64String(tool+"\x00"+fingerprint))
}

func toolOfKey(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

type cacheEntry struct {
	decision model.RoutingDecision
	expires  time.Time
}

// MemoryCache is an in-process DecisionCache with a TTL and an entry
// bound. Entries are kept in insertion order so the oldest is evicted
// first once expired entries are gone.
type MemoryCache struct {
	mu         sync.Mutex
	entries    *orderedmap.OrderedMap[string, cacheEntry]
	ttl        time.Duration
	maxEntries int
	clock      clock.Clock

	hits, misses, evictions int64
}

// NewMemoryCache creates a MemoryCache. Non-positive arguments select the
// defaults.
func NewMemoryCache(ttl time.Duration, maxEntries int, clk clock.Clock) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryCache{
		entries:    orderedmap.New[string, cacheEntry](),
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clk,
	}
}

// Get returns an unexpired decision.
func (c *MemoryCache) Get(_ context.Context, key string) (model.RoutingDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return model.RoutingDecision{}, false
	}
	if !c.clock.Now().Before(e.expires) {
		c.entries.Delete(key)
		c.evictions++
		c.misses++
		return model.RoutingDecision{}, false
	}
	c.hits++
	return e.decision, true
}

// Set stores a decision, evicting expired entries and then the oldest
// entries when the bound is reached.
func (c *MemoryCache) Set(_ context.Context, key string, d model.RoutingDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.entries.Delete(key)
	if c.entries.Len() >= c.maxEntries {
		c.evictExpired(now)
	}
	for c.entries.Len() >= c.maxEntries {
		oldest := c.entries.Oldest()
		c.entries.Delete(oldest.Key)
		c.evictions++
	}
	c.entries.Set(key, cacheEntry{decision: d, expires: now.Add(c.ttl)})
}

func (c *MemoryCache) evictExpired(now time.Time) {
	var expired []string
	for p := c.entries.Oldest(); p != nil; p = p.Next() {
		if !now.Before(p.Value.expires) {
			expired = append(expired, p.Key)
		}
	}
	for _, k := range expired {
		c.entries.Delete(k)
		c.evictions++
	}
}

// DeleteTool drops all decisions for tool.
func (c *MemoryCache) DeleteTool(_ context.Context, tool string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string
	for p := c.entries.Oldest(); p != nil; p = p.Next() {
		if toolOfKey(p.Key) == tool {
			keys = append(keys, p.Key)
		}
	}
	for _, k := range keys {
		c.entries.Delete(k)
	}
	return len(keys)
}

// Stats returns counters and the current size.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Backend:   "memory",
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.entries.Len(),
	}
}
