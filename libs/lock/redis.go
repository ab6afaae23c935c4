package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared across processes. Each acquisition stores a random
// token under prefix:key with a TTL; release deletes the key only if the token
// still matches, so an expired holder cannot free a newer holder's lock.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

type RedisOptions struct {
	Prefix string
	// TTL caps how long a crashed holder can block the key. Zero means 10s.
	TTL time.Duration
	// RetryEvery is the polling interval while waiting. Zero means 25ms.
	RetryEvery time.Duration
}

func NewRedis(rdb redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "lock"
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.RetryEvery <= 0 {
		opts.RetryEvery = 25 * time.Millisecond
	}
	return &Redis{rdb: rdb, prefix: opts.Prefix, ttl: opts.TTL, retry: opts.RetryEvery}
}

func (r *Redis) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	name := r.prefix + ":" + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := r.rdb.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// The caller's context may already be done; release on a fresh one.
				// A failed release expires with the TTL.
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(ctx, r.rdb, []string{name}, token).Err()
			}, nil
		}
		if time.Now().Add(r.retry).After(deadline) {
			return nil, ErrTimeout
		}
		t := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
