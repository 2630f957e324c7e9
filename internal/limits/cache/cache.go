package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

const DefaultTTL = 30 * time.Second

// Key is the redis key of an event's cached limit list
func Key(eventID string) string {
	return "number_limits_" + eventID
}

// LimitCache is a read-through cache of limit lists. Every method degrades to
// a miss on redis errors, the store stays the source of truth.
type LimitCache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewLimitCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *LimitCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LimitCache{Client: client, TTL: ttl, Logger: log}
}

func (c *LimitCache) Get(ctx context.Context, eventID string) ([]models.NumberLimit, bool) {
	if c == nil || c.Client == nil {
		return nil, false
	}
	raw, err := c.Client.Get(ctx, Key(eventID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.Logger.Warn("REDIS", fmt.Sprintf("limits cache read failed for event %s: %v", eventID, err))
		return nil, false
	}

	var limits []models.NumberLimit
	if err := json.Unmarshal(raw, &limits); err != nil {
		c.Logger.Warn("REDIS", fmt.Sprintf("dropping corrupt limits cache entry for event %s: %v", eventID, err))
		c.Invalidate(ctx, eventID)
		return nil, false
	}
	return limits, true
}

func (c *LimitCache) Set(ctx context.Context, eventID string, limits []models.NumberLimit) {
	if c == nil || c.Client == nil {
		return
	}
	raw, err := json.Marshal(limits)
	if err != nil {
		c.Logger.Warn("REDIS", fmt.Sprintf("encode limits for event %s: %v", eventID, err))
		return
	}
	if err := c.Client.Set(ctx, Key(eventID), raw, c.TTL).Err(); err != nil {
		c.Logger.Warn("REDIS", fmt.Sprintf("limits cache write failed for event %s: %v", eventID, err))
	}
}

func (c *LimitCache) Invalidate(ctx context.Context, eventID string) {
	if c == nil || c.Client == nil {
		return
	}
	if err := c.Client.Del(ctx, Key(eventID)).Err(); err != nil {
		c.Logger.Error("REDIS", fmt.Sprintf("failed to invalidate limits cache for event %s: %v", eventID, err))
	}
}
