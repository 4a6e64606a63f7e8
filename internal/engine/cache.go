package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// transcriptCache provides 2-tier caching: L1 in-memory + L2 Redis.
// L1 is fast but lost on restart. L2 survives restarts.
var transcriptCache *tieredCache

// Cache metrics.
var (
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
)

// tieredCache implements L1 (memory) + L2 (Redis) caching.
type tieredCache struct {
	l1              sync.Map      // key → *cacheEntry
	rdb             *redis.Client // nil if Redis unavailable
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stop            chan struct{}
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// InitCache sets up the 2-tier cache. Call after Init().
// redisURL can be empty to disable L2. Calling it again replaces the previous cache.
func InitCache(redisURL string, ttl time.Duration, maxEntries int, cleanupInterval time.Duration) {
	c := &tieredCache{ttl: ttl, maxEntries: maxEntries, cleanupInterval: cleanupInterval, stop: make(chan struct{})}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Warn("cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				slog.Warn("cache: redis unreachable, L2 disabled", slog.Any("error", err))
				_ = rdb.Close()
			} else {
				c.rdb = rdb
				slog.Info("cache: L2 redis connected", slog.String("addr", opts.Addr))
			}
		}
	}

	if transcriptCache != nil {
		close(transcriptCache.stop)
	}
	transcriptCache = c
	slog.Info("cache: initialized", slog.Duration("ttl", ttl), slog.Bool("redis", c.rdb != nil), slog.Int("max_entries", maxEntries))

	// Start L1 cleanup goroutine
	go c.cleanupLoop()
}

// CacheKey builds a deterministic cache key from parts.
func CacheKey(parts ...string) string {
	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("yt:%x", hash[:12]) // 24-char hex prefix
}

// TranscriptCacheKey keys a transcript by video ID and language preference.
func TranscriptCacheKey(videoID string, langs []string) string {
	return CacheKey("transcript", videoID, strings.Join(langs, ","))
}

// CacheGetTranscript tries L1, then L2. On L2 hit, populates L1.
func CacheGetTranscript(ctx context.Context, key string) (Transcript, bool) {
	data, ok := cacheGet(ctx, key)
	if !ok {
		return Transcript{}, false
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		transcriptCache.l1.Delete(key)
		return Transcript{}, false
	}
	return t, true
}

// CacheSetTranscript stores t in both L1 and L2.
func CacheSetTranscript(ctx context.Context, key string, t Transcript) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	cacheSet(ctx, key, data)
}

func cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if transcriptCache == nil {
		cacheMisses.Add(1)
		return nil, false
	}

	// L1 check
	if val, ok := transcriptCache.l1.Load(key); ok {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			slog.Debug("cache: L1 hit", slog.String("key", key))
			cacheHits.Add(1)
			return entry.data, true
		}
		transcriptCache.l1.Delete(key) // expired
	}

	// L2 check
	if transcriptCache.rdb != nil {
		data, err := transcriptCache.rdb.Get(ctx, key).Bytes()
		if err == nil {
			slog.Debug("cache: L2 hit", slog.String("key", key))
			cacheHits.Add(1)
			transcriptCache.l1.Store(key, &cacheEntry{
				data:      data,
				expiresAt: time.Now().Add(transcriptCache.ttl),
			})
			return data, true
		}
	}

	cacheMisses.Add(1)
	return nil, false
}

func cacheSet(ctx context.Context, key string, data []byte) {
	if transcriptCache == nil {
		return
	}

	// Evict if needed before adding
	transcriptCache.evictIfNeeded()

	transcriptCache.l1.Store(key, &cacheEntry{
		data:      data,
		expiresAt: time.Now().Add(transcriptCache.ttl),
	})

	if transcriptCache.rdb != nil {
		if err := transcriptCache.rdb.Set(ctx, key, data, transcriptCache.ttl).Err(); err != nil {
			slog.Debug("cache: L2 set failed", slog.Any("error", err))
		}
	}
}

// CacheStats returns current cache hit/miss counters.
func CacheStats() (hits, misses int64) {
	return cacheHits.Load(), cacheMisses.Load()
}

// evictIfNeeded removes entries when L1 exceeds maxEntries.
// Removes expired entries first, then oldest entries if still over limit.
func (c *tieredCache) evictIfNeeded() {
	if c.maxEntries <= 0 {
		return
	}

	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})

	if count < c.maxEntries {
		return
	}

	// Phase 1: remove expired
	now := time.Now()
	c.l1.Range(func(key, val any) bool {
		if entry, ok := val.(*cacheEntry); ok && now.After(entry.expiresAt) {
			c.l1.Delete(key)
			count--
		}
		return count >= c.maxEntries
	})

	// Phase 2: remove oldest entries until under limit.
	// Earlier expiry = older entry, since expiry = createdAt + ttl.
	for count >= c.maxEntries {
		var oldestKey any
		var oldestAt time.Time
		c.l1.Range(func(key, val any) bool {
			entry, ok := val.(*cacheEntry)
			if ok && (oldestKey == nil || entry.expiresAt.Before(oldestAt)) {
				oldestKey = key
				oldestAt = entry.expiresAt
			}
			return true
		})
		if oldestKey == nil {
			break
		}
		c.l1.Delete(oldestKey)
		count--
	}
}

// cleanupLoop periodically removes expired L1 entries.
func (c *tieredCache) cleanupLoop() {
	interval := c.cleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.l1.Range(func(key, val any) bool {
				if entry, ok := val.(*cacheEntry); ok && now.After(entry.expiresAt) {
					c.l1.Delete(key)
				}
				return true
			})
		}
	}
}
