package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis with JSON marshaling helpers for query-response
// caching. The windowed subgraph endpoints are polled aggressively by
// timeline UIs; a short TTL absorbs that without serving stale data for
// long.
type Client struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewClient creates a Redis client from connection parameters and
// verifies connectivity so a bad address fails at startup.
func NewClient(ctx context.Context, host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("redis host missing")
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger := slog.Default().With("component", "redis")
	logger.Info("redis client connected", "addr", addr, "ttl", ttl)

	return &Client{
		client: client,
		logger: logger,
		ttl:    ttl,
	}, nil
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	c.logger.Info("redis client closed")
	return nil
}

// HealthCheck verifies Redis connectivity. Used by the API health
// endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Get retrieves a cached value and unmarshals it into target.
// Returns true on a hit, false on a miss (a miss is not an error).
func (c *Client) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.logger.Debug("cache miss", "key", key)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), target); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value for key %s: %w", key, err)
	}

	c.logger.Debug("cache hit", "key", key)
	return true, nil
}

// Set stores a value with the configured default TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL
func (c *Client) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", key, err)
	}

	c.logger.Debug("cache set", "key", key, "ttl", ttl)
	return nil
}

// InvalidatePrefix deletes every key under a prefix. Ingestion calls
// this after writing so the next poll sees fresh windows.
func (c *Client) InvalidatePrefix(ctx context.Context, prefix string) (int64, error) {
	pattern := prefix + "*"

	var cursor uint64
	var keys []string
	for {
		var batch []string
		var err error
		batch, cursor, err = c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan failed for pattern %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis delete failed for pattern %s: %w", pattern, err)
	}

	c.logger.Info("cache invalidated", "prefix", prefix, "deleted", deleted)
	return deleted, nil
}

// Key prefixes, one per cached endpoint. Ingestion invalidates by
// prefix after writing so the next poll sees fresh windows.
const (
	SubgraphKeyPrefix       = "subgraph:"
	BucketsKeyPrefix        = "buckets:"
	SprintSubgraphKeyPrefix = "sprint-subgraph:"
)

// SubgraphKey builds the cache key for a windowed subgraph response.
// Every parameter that shapes the response participates, so two
// requests share a key only when their responses are identical.
func SubgraphKey(from, to int64, types []string, limit int, cursor string, includeCounts bool) string {
	normalized := make([]string, len(types))
	copy(normalized, types)
	sortStrings(normalized)

	return fmt.Sprintf("%s%d:%d:%s:%d:%s:%t",
		SubgraphKeyPrefix, from, to, strings.Join(normalized, ","), limit, cursor, includeCounts)
}

// BucketsKey builds the cache key for a commit-density histogram
func BucketsKey(granularity string, from, to int64) string {
	return fmt.Sprintf("%s%s:%d:%d", BucketsKeyPrefix, granularity, from, to)
}

// SprintSubgraphKey builds the cache key for one sprint's subgraph
func SprintSubgraphKey(number int) string {
	return fmt.Sprintf("%s%d", SprintSubgraphKeyPrefix, number)
}

// sortStrings is an insertion sort; type filter lists hold at most a
// handful of labels
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
