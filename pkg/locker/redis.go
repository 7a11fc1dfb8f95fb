package locker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the lock only when still owned by the caller.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX, so the critical section
// survives across API instances. The TTL bounds lock lifetime if the
// holder dies before releasing.
type RedisLocker struct {
	client        *redis.Client
	retryInterval time.Duration
	logger        *zerolog.Logger
}

func NewRedisLocker(client *redis.Client, logger *zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		client:        client,
		retryInterval: 25 * time.Millisecond,
		logger:        logger,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lockKey := "lock:" + key

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			release := func() {
				if err := releaseScript.Run(context.Background(), l.client, []string{lockKey}, token).Err(); err != nil && err != redis.Nil {
					l.logger.Warn().Err(err).Str("key", lockKey).Msg("failed to release lock")
				}
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
}
