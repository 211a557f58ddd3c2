package pricing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
	"github.com/go-redis/redis"
	"github.com/shopspring/decimal"
)

const pricePrefix = "price"

// Cache stores string values with an expiry. Get reports a miss with ok=false.
type Cache interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string, ttl time.Duration) error
}

// RedisCache is a Cache backed by a Redis server.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the Redis server at addr.
func NewRedisCache(addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
		ReadTimeout: 5 * time.Second,
	})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Get returns the cached value for key.
func (c *RedisCache) Get(key string) (string, bool, error) {
	value, err := c.client.Get(key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key for ttl.
func (c *RedisCache) Set(key, value string, ttl time.Duration) error {
	return c.client.Set(key, value, ttl).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedQuotes serves quotes from a cache and asks the underlying source
// only for the misses. Cache failures are logged and treated as misses.
type CachedQuotes struct {
	source  QuoteSource
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCachedQuotes wraps source with cache.
func NewCachedQuotes(source QuoteSource, cache Cache, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *CachedQuotes {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &CachedQuotes{
		source:  source,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

// Prices implements QuoteSource.
func (c *CachedQuotes) Prices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal, len(mints))
	var misses []string

	for _, mint := range mints {
		value, ok, err := c.cache.Get(priceKey(mint))
		if err != nil {
			c.logger.WarnContext(ctx, "price cache lookup failed", "mint", mint, "error", err)
		}
		if ok {
			if price, perr := decimal.NewFromString(value); perr == nil {
				c.metrics.RecordPriceCache(true)
				result[mint] = price
				continue
			}
		}
		c.metrics.RecordPriceCache(false)
		misses = append(misses, mint)
	}

	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := c.source.Prices(ctx, misses)
	if err != nil {
		return nil, err
	}
	for mint, price := range fetched {
		result[mint] = price
		if err := c.cache.Set(priceKey(mint), price.String(), c.ttl); err != nil {
			c.logger.WarnContext(ctx, "failed to cache price", "mint", mint, "error", err)
		}
	}
	return result, nil
}

func priceKey(mint string) string {
	return fmt.Sprintf("%s:%s", pricePrefix, quoteIdentifier(mint))
}
