package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-offer-scraper/internal/scraper"
)

// RedisClient is the subset of the go-redis client the cache needs, kept as
// an interface so tests can stub it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache keeps recently scraped products and offer lists in Redis so repeat
// lookups within the TTL skip the origin entirely.
type Cache struct {
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

func New(client RedisClient, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "cache"),
	}
}

func productKey(asin string) string {
	return "product:" + asin
}

func offersKey(asin string) string {
	return "offers:" + asin
}

// GetProduct returns the cached product for asin, or (nil, false) on a miss.
// Redis failures degrade to a miss with a warning; the cache is never a hard
// dependency.
func (c *Cache) GetProduct(ctx context.Context, asin string) (*scraper.Product, bool) {
	data, err := c.client.Get(ctx, productKey(asin)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "asin", asin, "error", err)
		}
		return nil, false
	}

	var product scraper.Product
	if err := json.Unmarshal(data, &product); err != nil {
		c.logger.Warn("cache entry corrupt, ignoring", "asin", asin, "error", err)
		return nil, false
	}
	return &product, true
}

// SetProduct stores a freshly scraped product under the cache TTL.
func (c *Cache) SetProduct(ctx context.Context, product *scraper.Product) {
	c.set(ctx, productKey(product.ASIN), product)
}

// GetOffers returns the cached offer list for asin, or (nil, false) on a
// miss. An empty cached list is a valid hit.
func (c *Cache) GetOffers(ctx context.Context, asin string) ([]scraper.Offer, bool) {
	data, err := c.client.Get(ctx, offersKey(asin)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "asin", asin, "error", err)
		}
		return nil, false
	}

	var offers []scraper.Offer
	if err := json.Unmarshal(data, &offers); err != nil {
		c.logger.Warn("cache entry corrupt, ignoring", "asin", asin, "error", err)
		return nil, false
	}
	return offers, true
}

// SetOffers stores a freshly collected offer list under the cache TTL.
func (c *Cache) SetOffers(ctx context.Context, asin string, offers []scraper.Offer) {
	if offers == nil {
		offers = []scraper.Offer{}
	}
	c.set(ctx, offersKey(asin), offers)
}

func (c *Cache) set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("failed to marshal cache entry", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// NewRedisClient builds the concrete go-redis client from addr settings.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
