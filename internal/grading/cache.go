package grading

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/langfocus/internal/logger"
	"github.com/hashicorp/golang-lru/v2/expirable"
	goredis "github.com/redis/go-redis/v9"
)

// Cache stores grading results for identical submissions
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool)
	Set(ctx context.Context, key string, res *Result)
}

// CacheKey identifies a submission by statement, technique and exact answer text
func CacheKey(statementID, techniqueID int, answer string) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(statementID)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(techniqueID)))
	h.Write([]byte{0})
	h.Write([]byte(answer))
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryCache is a process-local size and TTL bounded cache
type MemoryCache struct {
	lru *expirable.LRU[string, Result]
}

// NewMemoryCache creates a cache holding at most size entries for ttl each
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, Result](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Result, bool) {
	res, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return &res, true
}

func (c *MemoryCache) Set(_ context.Context, key string, res *Result) {
	c.lru.Add(key, *res)
}

// RedisCache shares grading results between processes
type RedisCache struct {
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

// NewRedisClient connects to addr and verifies the connection
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewRedisCache creates a cache on top of an existing client
func NewRedisCache(rdb *goredis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{
		rdb:    rdb,
		ttl:    ttl,
		prefix: "langfocus:grading:",
		log:    log.With("service", "RedisGradingCache"),
	}
}

// Get treats redis errors as misses
func (c *RedisCache) Get(ctx context.Context, key string) (*Result, bool) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warn("cache get failed", "error", err)
		}
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		c.log.Warn("cache entry corrupt", "error", err)
		return nil, false
	}
	return &res, true
}

func (c *RedisCache) Set(ctx context.Context, key string, res *Result) {
	raw, err := json.Marshal(res)
	if err != nil {
		c.log.Warn("cache encode failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache set failed", "error", err)
	}
}
