package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestCacheRoundTripAndTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewLimitCache(client, 30*time.Second, logger.NewWithWriter("test", nil))
	ctx := context.Background()

	_, ok := c.Get(ctx, "event-1")
	assert.False(t, ok)

	c.Set(ctx, "event-1", []models.NumberLimit{{ID: "l1", EventID: "event-1", NumberRange: "07", MaxTimes: 5}})

	got, ok := c.Get(ctx, "event-1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "07", got[0].NumberRange)
	assert.Equal(t, 30*time.Second, mr.TTL(Key("event-1")))

	mr.FastForward(31 * time.Second)
	_, ok = c.Get(ctx, "event-1")
	assert.False(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewLimitCache(client, 0, logger.NewWithWriter("test", nil))
	ctx := context.Background()

	c.Set(ctx, "event-1", []models.NumberLimit{})
	assert.True(t, mr.Exists("number_limits_event-1"))

	c.Invalidate(ctx, "event-1")
	assert.False(t, mr.Exists("number_limits_event-1"))
}

func TestCacheCorruptEntryIsAMiss(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewLimitCache(client, 0, logger.NewWithWriter("test", nil))

	require.NoError(t, mr.Set(Key("event-1"), "not json"))

	_, ok := c.Get(context.Background(), "event-1")
	assert.False(t, ok)
	assert.False(t, mr.Exists(Key("event-1")))
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *LimitCache
	_, ok := c.Get(context.Background(), "event-1")
	assert.False(t, ok)
	assert.NotPanics(t, func() { c.Invalidate(context.Background(), "event-1") })
}
