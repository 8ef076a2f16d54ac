package threadlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockers(t *testing.T) map[string]Locker {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rl := NewRedis(client, time.Minute)
	rl.retry = 5 * time.Millisecond
	return map[string]Locker{"memory": NewMemory(), "redis": rl}
}

func TestLock_SerializesSameKey(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var inside, peak int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := l.Lock(context.Background(), "thread_1")
					if !assert.NoError(t, err) {
						return
					}
					n := atomic.AddInt32(&inside, 1)
					for {
						p := atomic.LoadInt32(&peak)
						if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					unlock()
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), peak)
		})
	}
}

func TestLock_DifferentKeysIndependent(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			u1, err := l.Lock(context.Background(), "a")
			require.NoError(t, err)
			defer u1()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			u2, err := l.Lock(ctx, "b")
			require.NoError(t, err)
			u2()
		})
	}
}

func TestLock_BusyOnTimeout(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			unlock, err := l.Lock(context.Background(), "t")
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			_, err = l.Lock(ctx, "t")
			assert.ErrorIs(t, err, ErrBusy)
			assert.ErrorIs(t, err, context.DeadlineExceeded)

			unlock()
			unlock() // idempotent

			again, err := l.Lock(context.Background(), "t")
			require.NoError(t, err)
			again()
		})
	}
}

func TestMemory_ForgetsIdleKeys(t *testing.T) {
	m := NewMemory()
	unlock, err := m.Lock(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 1, m.size())
	unlock()
	assert.Equal(t, 0, m.size())
}

func TestRedis_ReleaseDoesNotStealSuccessor(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedis(client, time.Second)

	unlock, err := l.Lock(context.Background(), "t")
	require.NoError(t, err)

	// first holder's lease runs out and someone else takes the lock
	mr.FastForward(2 * time.Second)
	next, err := l.Lock(context.Background(), "t")
	require.NoError(t, err)

	unlock()
	assert.True(t, mr.Exists("bellachik:thread-lock:t"))
	next()
	assert.False(t, mr.Exists("bellachik:thread-lock:t"))
}

func TestRedis_HeldLockIsRenewed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedis(client, 300*time.Millisecond)
	l.retry = 5 * time.Millisecond
	const k = "bellachik:thread-lock:t"

	unlock, err := l.Lock(context.Background(), "t")
	require.NoError(t, err)

	// most of the lease passes; renewal must push the TTL back up
	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool { return mr.TTL(k) > 100*time.Millisecond }, 2*time.Second, 10*time.Millisecond)

	mr.FastForward(250 * time.Millisecond)
	require.True(t, mr.Exists(k))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "t")
	assert.ErrorIs(t, err, ErrBusy)

	unlock()
	assert.False(t, mr.Exists(k))

	// no renewal after unlock
	next, err := l.Lock(context.Background(), "t")
	require.NoError(t, err)
	defer next()
}
