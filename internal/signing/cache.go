package signing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/einvoice-networks/einvoice-gateway/internal/metrics"
)

const (
	redisKeyPrefix    = "einvoice:sigcache:"
	redisCertIndexKey = "einvoice:sigcache:cert:"
	defaultCacheSize  = 1000
	defaultCacheTTL   = time.Hour
)

type cacheEntry struct {
	block     SignatureBlock
	expiresAt time.Time
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Cache stores computed signature blocks keyed by document content, algorithm
// and certificate. The local tier is a size-bounded LRU with a per-entry TTL.
// An optional Redis tier shares signatures across instances; local lookups
// that miss fall through to Redis and backfill on a hit.
//
// Invalidation for a certificate purges the entire local tier. Local entries
// are not indexed by certificate and dropping unaffected signatures only
// costs re-signing, never correctness.
type Cache struct {
	mu     sync.Mutex
	local  *lru.Cache[string, cacheEntry]
	ttl    time.Duration
	rdb    *redis.Client
	logger *slog.Logger
	now    func() time.Time

	hits   uint64
	misses uint64
}

// CacheConfig configures a signature cache.
type CacheConfig struct {
	// Size bounds the local tier entry count.
	Size int

	// TTL bounds how long an entry may be served after insertion.
	TTL time.Duration

	// Redis enables the distributed tier when non-nil.
	Redis *redis.Client
}

// NewCache creates a signature cache. Size and TTL fall back to defaults
// when unset.
func NewCache(cfg CacheConfig, logger *slog.Logger) (*Cache, error) {
	if cfg.Size <= 0 {
		cfg.Size = defaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	local, err := lru.New[string, cacheEntry](cfg.Size)
	if err != nil {
		return nil, WrapInternalError(err, "failed to create local cache")
	}
	return &Cache{
		local:  local,
		ttl:    cfg.TTL,
		rdb:    cfg.Redis,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Get returns the cached signature block for key, if present and unexpired.
func (c *Cache) Get(ctx context.Context, key string) (SignatureBlock, bool) {
	c.mu.Lock()
	entry, ok := c.local.Get(key)
	if ok && c.now().After(entry.expiresAt) {
		c.local.Remove(key)
		ok = false
	}
	if ok {
		c.hits++
		c.mu.Unlock()
		metrics.SignatureCacheHits.WithLabelValues("local").Inc()
		return entry.block, true
	}
	c.mu.Unlock()

	if c.rdb != nil {
		if block, found := c.getDistributed(ctx, key); found {
			c.mu.Lock()
			c.hits++
			c.local.Add(key, cacheEntry{block: block, expiresAt: c.now().Add(c.ttl)})
			entries := c.local.Len()
			c.mu.Unlock()
			metrics.SignatureCacheHits.WithLabelValues("distributed").Inc()
			metrics.SignatureCacheEntries.Set(float64(entries))
			return block, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	metrics.SignatureCacheMisses.Inc()
	return SignatureBlock{}, false
}

// Put stores a signature block under key, associating it with the signing
// certificate for later invalidation.
func (c *Cache) Put(ctx context.Context, key string, block SignatureBlock) {
	c.mu.Lock()
	c.local.Add(key, cacheEntry{block: block, expiresAt: c.now().Add(c.ttl)})
	entries := c.local.Len()
	c.mu.Unlock()
	metrics.SignatureCacheEntries.Set(float64(entries))

	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(block)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to marshal signature block for distributed cache", "error", err)
		return
	}
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, redisKeyPrefix+key, data, c.ttl)
	pipe.SAdd(ctx, redisCertIndexKey+block.CertificateID, key)
	pipe.Expire(ctx, redisCertIndexKey+block.CertificateID, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to write signature block to distributed cache", "error", err)
	}
}

// InvalidateForCertificate removes all signatures produced by the given
// certificate. The local tier is purged wholesale; the Redis tier deletes
// the keys indexed under the certificate.
func (c *Cache) InvalidateForCertificate(ctx context.Context, certificateID string) error {
	c.mu.Lock()
	c.local.Purge()
	c.mu.Unlock()
	metrics.SignatureCacheEntries.Set(0)

	if c.rdb == nil {
		return nil
	}

	indexKey := redisCertIndexKey + certificateID
	keys, err := c.rdb.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return WrapInternalError(err, "failed to list distributed cache keys for certificate")
	}
	if len(keys) > 0 {
		prefixed := make([]string, len(keys))
		for i, k := range keys {
			prefixed[i] = redisKeyPrefix + k
		}
		if err := c.rdb.Del(ctx, prefixed...).Err(); err != nil {
			return WrapInternalError(err, "failed to delete distributed cache entries")
		}
	}
	if err := c.rdb.Del(ctx, indexKey).Err(); err != nil {
		return WrapInternalError(err, "failed to delete distributed cache certificate index")
	}
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Entries: c.local.Len(),
	}
}

func (c *Cache) getDistributed(ctx context.Context, key string) (SignatureBlock, bool) {
	data, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "distributed cache lookup failed", "error", err)
		}
		return SignatureBlock{}, false
	}
	var block SignatureBlock
	if err := json.Unmarshal(data, &block); err != nil {
		c.logger.WarnContext(ctx, "failed to unmarshal distributed cache entry",
			"error", err, "key", fmt.Sprintf("%.16s", key))
		return SignatureBlock{}, false
	}
	return block, true
}
