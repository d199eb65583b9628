package rediscache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var ErrLocked = errors.New("lock is held by another run")

// Only the holder's token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock keeps two submission runs for the same operator from overlapping.
type Lock struct {
	c     *redis.Client
	key   string
	ttl   time.Duration
	token string
}

func NewLock(c *redis.Client, key string, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Lock{c: c, key: key, ttl: ttl}
}

// Acquire returns ErrLocked when another holder has the key.
func (l *Lock) Acquire(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.c.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return errors.Wrap(err, "redis setnx")
	}
	if !ok {
		return ErrLocked
	}
	l.token = token
	return nil
}

func (l *Lock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.c, []string{l.key}, l.token).Err(); err != nil {
		return errors.Wrap(err, "redis release lock")
	}
	l.token = ""
	return nil
}
