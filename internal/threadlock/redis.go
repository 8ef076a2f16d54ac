package threadlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// compare-and-delete so an expired holder never frees its successor's lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// compare-and-pexpire keeps the lease alive only while the token still owns it
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis locks across replicas with SET NX PX. A held lock is renewed every
// ttl/3 until unlock, so the TTL only bounds how long a crashed holder
// blocks the thread.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	renew  time.Duration
	prefix string
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl < time.Millisecond {
		ttl = 30 * time.Second
	}
	return &Redis{client: client, ttl: ttl, retry: 100 * time.Millisecond, renew: ttl / 3, prefix: "bellachik:thread-lock:"}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, busy(ctx)
			}
			return nil, fmt.Errorf("thread lock %s: %w", key, err)
		}
		if ok {
			break
		}
		t := time.NewTimer(r.retry)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, busy(ctx)
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{k}, token).Err()
		})
	}, nil
}

func (r *Redis) keepAlive(k, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(r.renew)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.renew)
			n, err := renewScript.Run(ctx, r.client, []string{k}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				// lease lost to expiry; a successor may hold it now
				return
			}
		}
	}
}
