package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes turns for one conversation identity.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned
	// function releases it.
	Lock(ctx context.Context, key string) (func(), error)
}

// LockKey names the lock for a (clinic, channel, phone) identity.
func LockKey(clinicID string, channel Channel, phone string) string {
	return fmt.Sprintf("vetclinic:turnlock:%s:%s:%s", clinicID, channel, phone)
}

// LocalLocker serializes turns inside one process. A key's slot lives only
// while someone holds or waits for it.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*localSlot)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	slot := l.acquire(key)
	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(key)
			})
		}, nil
	case <-ctx.Done():
		l.release(key)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) acquire(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = make(map[string]*localSlot)
	}
	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *LocalLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		return
	}
	if slot.refs--; slot.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// ErrLockTimeout is returned when a distributed lock cannot be taken in time.
var ErrLockTimeout = errors.New("conversation: lock wait timed out")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes turns across processes with SET NX PX. The TTL
// bounds how long a crashed holder blocks the conversation.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisLocker builds a distributed locker. ttl defaults to 30s and wait to
// twice the ttl.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, wait: 2 * ttl, poll: 25 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("conversation: acquire lock: %w", err)
		}
		if ok {
			return func() {
				// a failed release is left to the TTL
				_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrLockTimeout
		case <-time.After(l.poll):
		}
	}
}
