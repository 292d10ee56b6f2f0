package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"charterops/internal/utils"
)

// unlockScript deletes the key only while it still holds our token, so an
// expired holder cannot release a lock someone else now owns.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease-based Locker for multi-instance deployments.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration // lease length; must exceed the longest booking flow
	Wait   time.Duration
	Retry  time.Duration
	Prefix string
}

func NewRedisFromURL(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Redis{Client: redis.NewClient(opt)}, nil
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := r.Retry
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	name := r.Prefix + key
	token := uuid.NewString()

	waitCtx, cancel := withWait(ctx, r.Wait)
	defer cancel()

	for {
		ok, err := r.Client.SetNX(waitCtx, name, token, ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, busy(key, waitCtx.Err())
			}
			return nil, err
		}
		if ok {
			break
		}
		timer := time.NewTimer(retry)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			return nil, busy(key, waitCtx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := unlockScript.Run(relCtx, r.Client, []string{name}, token).Err(); err != nil {
				utils.LogFailure(ctx, "LOCK", "release", err)
			}
		})
	}, nil
}
