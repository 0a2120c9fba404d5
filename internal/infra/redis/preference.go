package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maruthiprithivi/chainwatch/internal/rpc/bitcoin"
)

const preferenceKey = "router_preference:bitcoin"

// SavePreference persists the Source Router's sticky preference and
// cooldown deadline so a restart doesn't thrash back to the default.
// Client implements bitcoin.PreferenceStore via this and LoadPreference.
func (c *Client) SavePreference(ctx context.Context, pref bitcoin.Preference, cooldownUntil time.Time) error {
	val := fmt.Sprintf("%s|%d", pref, cooldownUntil.UnixNano())
	return c.rdb.Set(ctx, preferenceKey, val, 0).Err()
}

// LoadPreference returns the last-persisted preference and cooldown
// deadline, or an empty preference if none has been saved yet.
func (c *Client) LoadPreference(ctx context.Context) (bitcoin.Preference, time.Time, error) {
	val, err := c.rdb.Get(ctx, preferenceKey).Result()
	if err == redis.Nil {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("get failed: %w", err)
	}

	parts := strings.SplitN(val, "|", 2)
	if len(parts) != 2 {
		return "", time.Time{}, fmt.Errorf("malformed preference value: %s", val)
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed cooldown timestamp: %w", err)
	}
	return bitcoin.Preference(parts[0]), time.Unix(0, nanos), nil
}
