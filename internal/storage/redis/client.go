package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Client defines the Redis operations the store needs
type Client interface {
	// Get fetches a string value; implementations return found=false
	// for missing keys instead of an error
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set stores a value with a TTL
	Set(ctx context.Context, key, value string, ttl int64) error
	// Eval executes a Lua script
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	// Del deletes keys
	Del(ctx context.Context, keys ...string) error
	// Close closes the connection
	Close() error
}

// ClientAdapter adapts a go-redis client to our interface
type ClientAdapter struct {
	client redis.UniversalClient
}

// NewClientAdapter creates a new client adapter
func NewClientAdapter(client redis.UniversalClient) *ClientAdapter {
	return &ClientAdapter{client: client}
}

// Get fetches a string value
func (c *ClientAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set stores a value with a TTL given in seconds (0 = no expiry)
func (c *ClientAdapter) Set(ctx context.Context, key, value string, ttlSeconds int64) error {
	return c.client.Set(ctx, key, value, secondsToDuration(ttlSeconds)).Err()
}

// Eval executes a Lua script
func (c *ClientAdapter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return c.client.Eval(ctx, script, keys, args...).Result()
}

// Del deletes keys
func (c *ClientAdapter) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Close closes the connection
func (c *ClientAdapter) Close() error {
	return c.client.Close()
}
