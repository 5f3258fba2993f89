package slotlock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	l := NewLocalLocker(time.Second)

	release, ok, err := l.Acquire(context.Background(), "c1", "2026-03-02", "09:00")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	_, ok, err = l.Acquire(context.Background(), "c1", "2026-03-02", "09:00")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("same slot acquired twice")
	}

	// A different slot is independent.
	release2, ok, err := l.Acquire(context.Background(), "c1", "2026-03-02", "10:00")
	if err != nil || !ok {
		t.Fatalf("different slot: ok=%v err=%v", ok, err)
	}
	release2()

	release()
	_, ok, err = l.Acquire(context.Background(), "c1", "2026-03-02", "09:00")
	if err != nil || !ok {
		t.Fatalf("reacquire after release: ok=%v err=%v", ok, err)
	}
}

func TestLocalLocker_ExpiredLockIsReacquirable(t *testing.T) {
	l := NewLocalLocker(10 * time.Millisecond)
	if _, ok, _ := l.Acquire(context.Background(), "c1", "2026-03-02", "09:00"); !ok {
		t.Fatal("first acquire failed")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok, _ := l.Acquire(context.Background(), "c1", "2026-03-02", "09:00"); !ok {
		t.Fatal("expired lock not reacquirable")
	}
}

func TestLocalLocker_SweepsExpiredEntries(t *testing.T) {
	l := NewLocalLocker(10 * time.Millisecond)
	for _, tm := range []string{"09:00", "10:00", "11:00"} {
		if _, ok, _ := l.Acquire(context.Background(), "c1", "2026-03-02", tm); !ok {
			t.Fatalf("acquire %s failed", tm)
		}
	}
	time.Sleep(20 * time.Millisecond)

	// Acquiring any slot evicts the stale entries, not just its own key.
	if _, ok, _ := l.Acquire(context.Background(), "c2", "2026-03-03", "09:00"); !ok {
		t.Fatal("acquire after expiry failed")
	}

	l.mu.Lock()
	n := len(l.held)
	l.mu.Unlock()
	if n != 1 {
		t.Fatalf("held map has %d entries, want 1", n)
	}
}

func TestLocalLocker_ConcurrentAcquire(t *testing.T) {
	l := NewLocalLocker(time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := l.Acquire(context.Background(), "c1", "2026-03-02", "09:00"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
