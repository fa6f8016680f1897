// Package cache memoizes location search results in Redis so repeated runs and retried
// rebuilds do not hit the upstream for terms it already answered.
package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"location_mapper/internal/taxonomy"
	"location_mapper/platform/logger"
	"location_mapper/platform/textnorm"
)

// KeyPrefix namespaces every cached search result.
const KeyPrefix = "locmap:query:"

// Searcher is the search client being cached.
type Searcher interface {
	Query(ctx context.Context, term string) ([]taxonomy.Candidate, error)
}

// Client is a read-through cache in front of a Searcher. Redis failures are logged and
// bypassed; they never fail a query.
type Client struct {
	next Searcher
	rdb  redis.UniversalClient
	ttl  time.Duration
	log  *logger.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New wraps next with a Redis cache. A zero ttl keeps entries until evicted.
func New(next Searcher, rdb redis.UniversalClient, ttl time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{next: next, rdb: rdb, ttl: ttl, log: log}
}

// NewRedisClient opens a go-redis client from a redis:// or rediss:// URL.
func NewRedisClient(redisURL string, tlsInsecure bool) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if tlsInsecure {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}

// Key returns the cache key for term.
func Key(term string) string {
	return KeyPrefix + textnorm.NormalizeKey(term)
}

// Query answers from Redis when possible and caches successful upstream answers.
func (c *Client) Query(ctx context.Context, term string) ([]taxonomy.Candidate, error) {
	key := Key(term)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []taxonomy.Candidate
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			c.hits.Add(1)
			return cached, nil
		}
		c.log.Warn("query cache entry corrupt", "key", key)
	case errors.Is(err, redis.Nil):
		// Miss - continue upstream
	default:
		c.log.Warn("query cache read failed", "key", key, "error", err)
	}
	c.misses.Add(1)

	candidates, err := c.next.Query(ctx, term)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(candidates)
	if err != nil {
		c.log.Warn("query cache encode failed", "key", key, "error", err)
		return candidates, nil
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn("query cache write failed", "key", key, "error", err)
	}
	return candidates, nil
}

// Purge deletes every cached search result and returns how many keys were removed.
func (c *Client) Purge(ctx context.Context) (int, error) {
	removed := 0
	iter := c.rdb.Scan(ctx, 0, KeyPrefix+"*", 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			n, err := c.rdb.Del(ctx, batch...).Result()
			if err != nil {
				return removed, fmt.Errorf("purge query cache: %w", err)
			}
			removed += int(n)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan query cache: %w", err)
	}
	if len(batch) > 0 {
		n, err := c.rdb.Del(ctx, batch...).Result()
		if err != nil {
			return removed, fmt.Errorf("purge query cache: %w", err)
		}
		removed += int(n)
	}
	return removed, nil
}

// Hits returns the number of queries answered from Redis.
func (c *Client) Hits() int64 { return c.hits.Load() }

// Misses returns the number of queries sent upstream.
func (c *Client) Misses() int64 { return c.misses.Load() }
