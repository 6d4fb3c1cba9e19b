package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/calendar-gateway/internal/repository"
)

const lockPrefix = "calendar-gateway:refresh_lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRefreshLock implements RefreshLock with SET NX and a compare-and-delete release.
type RedisRefreshLock struct {
	client redis.UniversalClient
}

var _ repository.RefreshLock = (*RedisRefreshLock)(nil)

func NewRedisRefreshLock(client redis.UniversalClient) *RedisRefreshLock {
	return &RedisRefreshLock{client: client}
}

func (l *RedisRefreshLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{lockPrefix + key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release refresh lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// Ping checks Redis connectivity.
func (l *RedisRefreshLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
