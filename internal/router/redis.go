package router

import (
	"context"
	"encoding/json"
	"path"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/khanglvm/tool-optimizer-mcp/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisCache shares routing decisions between optimizer replicas. Keys
// expire natively after the TTL, and each tool keeps at most maxPerTool
// decisions; beyond that random decisions of the tool are evicted. The key
// namespace is:
//   - `/<prefix>/routes/<tool>/<key>` for a decision
//   - `/<prefix>/routes/<tool>/keys` for the set of decision keys of a tool
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	maxPerTool int64

	hits, misses, errs, evictions atomic.Int64
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr, prefix string, ttl time.Duration, maxPerTool int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", addr)
	}
	return NewRedisCacheFromClient(client, prefix, ttl, maxPerTool), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, prefix string, ttl time.Duration, maxPerTool int) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if prefix == "" {
		prefix = "tool-optimizer"
	}
	if maxPerTool <= 0 {
		maxPerTool = DefaultCacheMaxEntries
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, maxPerTool: int64(maxPerTool)}
}

func (c *RedisCache) decisionKey(key string) string {
	return path.Join("/", c.prefix, "routes", toolOfKey(key), key)
}

func (c *RedisCache) toolSetKey(tool string) string {
	return path.Join("/", c.prefix, "routes", tool, "keys")
}

// Get returns a cached decision; errors count as misses.
func (c *RedisCache) Get(ctx context.Context, key string) (model.RoutingDecision, bool) {
	data, err := c.client.Get(ctx, c.decisionKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.errs.Add(1)
			logger.KV(xlog.WARNING, "reason", "redis_get", "key", key, "err", err.Error())
		}
		c.misses.Add(1)
		return model.RoutingDecision{}, false
	}

	var d model.RoutingDecision
	if err := json.Unmarshal(data, &d); err != nil {
		c.errs.Add(1)
		c.misses.Add(1)
		logger.KV(xlog.WARNING, "reason", "unmarshal_decision", "key", key, "err", err.Error())
		return model.RoutingDecision{}, false
	}
	c.hits.Add(1)
	return d, true
}

// Set stores a decision with the cache TTL; failures are logged.
func (c *RedisCache) Set(ctx context.Context, key string, d model.RoutingDecision) {
	data, err := json.Marshal(d)
	if err != nil {
		c.errs.Add(1)
		logger.KV(xlog.WARNING, "reason", "marshal_decision", "key", key, "err", err.Error())
		return
	}

	tool := toolOfKey(key)
	setKey := c.toolSetKey(tool)
	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.decisionKey(key), data, c.ttl)
	pipe.SAdd(ctx, setKey, key)
	pipe.Expire(ctx, setKey, c.ttl)
	card := pipe.SCard(ctx, setKey)
	if _, err := pipe.Exec(ctx); err != nil {
		c.errs.Add(1)
		logger.KV(xlog.WARNING, "reason", "redis_set", "key", key, "err", err.Error())
		return
	}
	if over := card.Val() - c.maxPerTool; over > 0 {
		c.trim(ctx, tool, over)
	}
}

// trim evicts n random decisions of tool.
func (c *RedisCache) trim(ctx context.Context, tool string, n int64) {
	setKey := c.toolSetKey(tool)
	keys, err := c.client.SPopN(ctx, setKey, n).Result()
	if err != nil {
		c.errs.Add(1)
		logger.KV(xlog.WARNING, "reason", "redis_spop", "tool", tool, "err", err.Error())
		return
	}
	if len(keys) == 0 {
		return
	}
	del := make([]string, 0, len(keys))
	for _, k := range keys {
		del = append(del, c.decisionKey(k))
	}
	if err := c.client.Del(ctx, del...).Err(); err != nil {
		c.errs.Add(1)
		logger.KV(xlog.WARNING, "reason", "redis_del", "tool", tool, "err", err.Error())
		return
	}
	c.evictions.Add(int64(len(keys)))
}

// DeleteTool drops all decisions recorded for tool.
func (c *RedisCache) DeleteTool(ctx context.Context, tool string) int {
	setKey := c.toolSetKey(tool)
	keys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		c.errs.Add(1)
		logger.KV(xlog.WARNING, "reason", "redis_smembers", "tool", tool, "err", err.Error())
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	del := make([]string, 0, len(keys))
	for _, k := range keys {
		del = append(del, c.decisionKey(k))
	}
	pipe := c.client.Pipeline()
	delCmd := pipe.Del(ctx, del...)
	pipe.Del(ctx, setKey)
	if _, err := pipe.Exec(ctx); err != nil {
		c.errs.Add(1)
		logger.KV(xlog.WARNING, "reason", "redis_del", "tool", tool, "err", err.Error())
		return 0
	}
	return int(delCmd.Val())
}

// Stats returns hit, miss and eviction counters. Size is not tracked for
// redis.
func (c *RedisCache) Stats() CacheStats {
	return CacheStats{
		Backend:   "redis",
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Errors:    c.errs.Load(),
	}
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
