// Package redis backs two of the engine's concerns on a single Redis
// connection: the Bitcoin Source Router's sticky preference (so it
// survives a process restart without depending on the Postgres store
// being reachable) and a rescan-range queue of already-committed
// position ranges (push/pop, per-range lock and progress). No other
// package in this repository calls the queue operations.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection used by the Source Router and the
// rescan queue.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NewClient creates a new Redis client and verifies connectivity.
func NewClient(cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func queueKey(chainID string) string {
	return fmt.Sprintf("rescan:%s", chainID)
}

func lockKey(chainID string, start, end uint64) string {
	return fmt.Sprintf("rescan:lock:%s:%d-%d", chainID, start, end)
}

func progressKey(chainID string, start, end uint64) string {
	return fmt.Sprintf("rescan:progress:%s:%d-%d", chainID, start, end)
}

// PopRange pops the lowest-positioned range off a chain's rescan queue.
func (c *Client) PopRange(ctx context.Context, chainID string) (start, end uint64, found bool, err error) {
	key := queueKey(chainID)

	results, err := c.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, 0, false, fmt.Errorf("zrange failed: %w", err)
	}
	if len(results) == 0 {
		return 0, 0, false, nil
	}

	member := results[0].Member.(string)
	start, end, err = ParseRangeString(member)
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid range format: %w", err)
	}

	if err := c.rdb.ZRem(ctx, key, member).Err(); err != nil {
		return 0, 0, false, fmt.Errorf("zrem failed: %w", err)
	}

	return start, end, true, nil
}

// PushRange enqueues a rescan request for [start, end] on a chain.
func (c *Client) PushRange(ctx context.Context, chainID string, start, end uint64) error {
	key := queueKey(chainID)
	member := fmt.Sprintf("%d-%d", start, end)
	if err := c.rdb.ZAdd(ctx, key, redis.Z{Score: float64(start), Member: member}).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// GetAllRanges returns every range still queued for a chain.
func (c *Client) GetAllRanges(ctx context.Context, chainID string) ([]string, error) {
	return c.rdb.ZRange(ctx, queueKey(chainID), 0, -1).Result()
}

// ClearQueue drops every queued range for a chain.
func (c *Client) ClearQueue(ctx context.Context, chainID string) error {
	return c.rdb.Del(ctx, queueKey(chainID)).Err()
}

// AcquireLock claims exclusive processing of a range for ttl.
func (c *Client) AcquireLock(ctx context.Context, chainID string, start, end uint64, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(chainID, start, end), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleaseLock releases a range's processing lock.
func (c *Client) ReleaseLock(ctx context.Context, chainID string, start, end uint64) error {
	return c.rdb.Del(ctx, lockKey(chainID, start, end)).Err()
}

// GetProgress returns the last rescanned position within a range,
// defaulting to the range's start when no progress has been recorded.
func (c *Client) GetProgress(ctx context.Context, chainID string, start, end uint64) (uint64, error) {
	val, err := c.rdb.Get(ctx, progressKey(chainID, start, end)).Result()
	if err == redis.Nil {
		return start, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get failed: %w", err)
	}
	return strconv.ParseUint(val, 10, 64)
}

// SetProgress records the last rescanned position within a range.
func (c *Client) SetProgress(ctx context.Context, chainID string, start, end, current uint64, ttl time.Duration) error {
	return c.rdb.Set(ctx, progressKey(chainID, start, end), strconv.FormatUint(current, 10), ttl).Err()
}

// ClearProgress removes progress tracking for a range, e.g. once it
// completes.
func (c *Client) ClearProgress(ctx context.Context, chainID string, start, end uint64) error {
	return c.rdb.Del(ctx, progressKey(chainID, start, end)).Err()
}

// ParseRangeString parses the "start-end" member format used by the
// rescan queue's sorted set.
func ParseRangeString(s string) (start, end uint64, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format: %s", s)
	}
	start, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start: %w", err)
	}
	end, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end: %w", err)
	}
	if start > end {
		return 0, 0, fmt.Errorf("start > end: %d > %d", start, end)
	}
	return start, end, nil
}
