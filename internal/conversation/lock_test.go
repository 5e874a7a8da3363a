package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLockerSerializesHolders(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	locker := NewRedisLocker(client, 100*time.Millisecond)
	key := LockKey("clinic-1", ChannelChat, "+573001112233")
	assert.Equal(t, "vetclinic:turnlock:clinic-1:chat:+573001112233", key)

	unlock, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)

	// miniredis does not expire keys on its own, so the holder stays put.
	_, err = locker.Lock(context.Background(), key)
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	assert.False(t, mr.Exists(key))

	unlock, err = locker.Lock(context.Background(), key)
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	locker := NewRedisLocker(client, time.Second)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	require.NoError(t, mr.Set("k", "someone-else"))
	unlock()
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	if _, err := locker.Lock(context.Background(), "other"); err != nil {
		t.Fatalf("independent keys must not block: %v", err)
	}

	unlock()
	again, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
	again()
}

func TestLocalLockerDropsIdleKeys(t *testing.T) {
	locker := NewLocalLocker()
	for i := 0; i < 50; i++ {
		unlock, err := locker.Lock(context.Background(), LockKey("clinic-1", ChannelChat, string(rune('a'+i%26))+"-phone"))
		require.NoError(t, err)
		unlock()
	}
	assert.Zero(t, locker.size())

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan func())
	go func() {
		next, err := locker.Lock(context.Background(), "k")
		if err == nil {
			acquired <- next
		}
	}()
	unlock()
	unlock()

	select {
	case next := <-acquired:
		assert.Equal(t, 1, locker.size(), "slot stays while held")
		next()
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the released key")
	}
	assert.Zero(t, locker.size())
}
