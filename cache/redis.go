package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/stock-count/count"
)

// KeyPrefix namespaces the lookup entries in Redis.
const KeyPrefix = "count:lookup:"

// Redis is a FactCache shared between server instances.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client. A ttl of zero stores entries without expiry.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// DialRedis connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewRedis(client, ttl), nil
}

func key(locationID count.LocationID) string {
	return KeyPrefix + string(locationID)
}

func (c *Redis) Get(ctx context.Context, locationID count.LocationID) (*count.CacheEntry, bool, error) {
	raw, err := c.client.Get(ctx, key(locationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	entry := count.NewCacheEntry()
	if err := json.Unmarshal(raw, entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", locationID, err)
	}
	return entry.Clone(), true, nil
}

func (c *Redis) Put(ctx context.Context, locationID count.LocationID, entry *count.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(locationID), raw, c.ttl).Err()
}

func (c *Redis) Delete(ctx context.Context, locationID count.LocationID) error {
	return c.client.Del(ctx, key(locationID)).Err()
}

// Close closes the underlying client.
func (c *Redis) Close() error {
	return c.client.Close()
}
