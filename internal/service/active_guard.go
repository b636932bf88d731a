package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/skillsense/assessment-backend/internal/config"
)

// ActiveGuard enforces one live test per user across server instances.
type ActiveGuard interface {
	Acquire(ctx context.Context, userID string, sessionID uuid.UUID, ttl time.Duration) (bool, error)
	Current(ctx context.Context, userID string) (uuid.UUID, bool, error)
	Release(ctx context.Context, userID string, sessionID uuid.UUID) error
}

// releaseScript deletes the key only while it still holds our session id.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisActiveGuard stores the active session id under
// config.CacheKey.UserActiveTestKey.
type RedisActiveGuard struct {
	rdb *redis.Client
}

// NewRedisActiveGuard creates a new RedisActiveGuard.
func NewRedisActiveGuard(rdb *redis.Client) *RedisActiveGuard {
	return &RedisActiveGuard{rdb: rdb}
}

func (g *RedisActiveGuard) Acquire(ctx context.Context, userID string, sessionID uuid.UUID, ttl time.Duration) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, config.CacheKey.UserActiveTestKey(userID), sessionID.String(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire active test: %w", err)
	}
	return ok, nil
}

func (g *RedisActiveGuard) Current(ctx context.Context, userID string) (uuid.UUID, bool, error) {
	raw, err := g.rdb.Get(ctx, config.CacheKey.UserActiveTestKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("get active test: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt active test id %q: %w", raw, err)
	}
	return id, true, nil
}

func (g *RedisActiveGuard) Release(ctx context.Context, userID string, sessionID uuid.UUID) error {
	err := releaseScript.Run(ctx, g.rdb, []string{config.CacheKey.UserActiveTestKey(userID)}, sessionID.String()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release active test: %w", err)
	}
	return nil
}
