package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-raffle/internal/logger"
)

const DefaultInFlightTTL = 30 * time.Second

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SubmissionGuard rejects a second create-ticket submission carrying an
// idempotency key that is still being processed
type SubmissionGuard struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewSubmissionGuard(client *redis.Client, ttl time.Duration, log *logger.Logger) *SubmissionGuard {
	if ttl <= 0 {
		ttl = DefaultInFlightTTL
	}
	return &SubmissionGuard{Client: client, TTL: ttl, Logger: log}
}

func guardKey(idempotencyKey string) string {
	return "ticket_inflight:" + idempotencyKey
}

// Acquire reports false when the key is already held. The TTL bounds how long
// a crashed request can block retries.
func (g *SubmissionGuard) Acquire(ctx context.Context, idempotencyKey, owner string) (bool, error) {
	ok, err := g.Client.SetNX(ctx, guardKey(idempotencyKey), owner, g.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire submission guard %s: %w", idempotencyKey, err)
	}
	if !ok {
		g.Logger.Warn("REDIS", fmt.Sprintf("submission %s already in flight", idempotencyKey))
	}
	return ok, nil
}

// Release is a no-op when the key expired or belongs to another owner
func (g *SubmissionGuard) Release(ctx context.Context, idempotencyKey, owner string) error {
	err := releaseScript.Run(ctx, g.Client, []string{guardKey(idempotencyKey)}, owner).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release submission guard %s: %w", idempotencyKey, err)
	}
	return nil
}
