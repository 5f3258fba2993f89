// Package slotlock provides a short-lived advisory lock around the
// check-then-create sequence in booking. The free/busy re-check and the event
// insert are not atomic against Google, so without this lock two concurrent
// requests for the same slot can both pass the re-check.
package slotlock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker acquires an exclusive lock for one counselor/slot tuple. Acquire
// returns false when another request already holds it; the caller should treat
// that the same as a busy slot.
type Locker interface {
	Acquire(ctx context.Context, counselorID, date, timeStr string) (release func(), ok bool, err error)
}

func slotKey(counselorID, date, timeStr string) string {
	return strings.Join([]string{"slotlock", counselorID, date, timeStr}, ":")
}

// RedisLocker is the multi-instance implementation: SET NX with a TTL, so a
// crashed holder cannot wedge the slot for longer than the TTL.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, counselorID, date, timeStr string) (func(), bool, error) {
	key := slotKey(counselorID, date, timeStr)
	ok, err := l.rdb.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// Release uses a fresh context so a canceled request still unlocks.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.rdb.Del(releaseCtx, key).Err()
	}
	return release, true, nil
}

// LocalLocker is the single-instance fallback when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	ttl  time.Duration
}

func NewLocalLocker(ttl time.Duration) *LocalLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &LocalLocker{held: map[string]time.Time{}, ttl: ttl}
}

func (l *LocalLocker) Acquire(_ context.Context, counselorID, date, timeStr string) (func(), bool, error) {
	key := slotKey(counselorID, date, timeStr)
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop expired entries so abandoned locks don't accumulate.
	for k, expiry := range l.held {
		if !now.Before(expiry) {
			delete(l.held, k)
		}
	}

	if expiry, exists := l.held[key]; exists && now.Before(expiry) {
		return nil, false, nil
	}
	l.held[key] = now.Add(l.ttl)

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}
	return release, true, nil
}
