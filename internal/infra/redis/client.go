package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for snapshot storage and the sync lock.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func pricesKey(platform string) string {
	return fmt.Sprintf("prices:%s", platform)
}

func unpricedKey(platform string) string {
	return fmt.Sprintf("unpriced:%s", platform)
}

func catalogKey(platform string) string {
	return fmt.Sprintf("catalog:%s", platform)
}

func lockKey(platform string) string {
	return fmt.Sprintf("sync_lock:%s", platform)
}

// SyncLock is a held per-platform sync lock.
type SyncLock struct {
	client   *Client
	platform string
	token    string
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// refreshScript extends the lock only if it still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// AcquireSyncLock attempts to take the sync lock for a platform. It returns
// nil and no error when another process holds it.
func (c *Client) AcquireSyncLock(ctx context.Context, platform string, ttl time.Duration) (*SyncLock, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, lockKey(platform), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &SyncLock{client: c, platform: platform, token: token}, nil
}

// Refresh extends the TTL of the lock. It returns false if the lock was lost.
func (l *SyncLock) Refresh(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, l.client.rdb, []string{lockKey(l.platform)}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("refresh lock: %w", err)
	}
	return n == 1, nil
}

// Release releases the lock if it is still ours.
func (l *SyncLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client.rdb, []string{lockKey(l.platform)}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
