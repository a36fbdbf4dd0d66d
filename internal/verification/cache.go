package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"inapppay/internal/models"
)

// CachedResponse is a successful verifyReceipt response
type CachedResponse struct {
	Environment models.Environment
	Payload     []byte
}

// ResponseCache stores successful responses by receipt hash. Get returns
// nil, nil on a miss.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*CachedResponse, error)
	Set(ctx context.Context, key string, resp *CachedResponse) error
}

// RedisCache is a ResponseCache on Redis with a fixed TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and checks the connection
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var resp cachedEnvelope
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode cached response: %w", err)
	}
	env, err := models.ParseEnvironment(resp.Environment)
	if err != nil {
		return nil, err
	}
	return &CachedResponse{Environment: env, Payload: resp.Payload}, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, resp *CachedResponse) error {
	data, err := json.Marshal(cachedEnvelope{Environment: resp.Environment.String(), Payload: resp.Payload})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKey(key), data, c.ttl).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

type cachedEnvelope struct {
	Environment string `json:"environment"`
	Payload     []byte `json:"payload"`
}

func redisKey(key string) string {
	return fmt.Sprintf("receipt_verification:%s", key)
}
