package keymutex

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLockUnlock(t *testing.T) {
	a := New(time.Second)
	unlock, err := a.Lock(context.Background(), "gold")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	unlock()

	// Re-acquiring after release must succeed immediately.
	unlock, err = a.Lock(context.Background(), "gold")
	if err != nil {
		t.Fatalf("relock failed: %v", err)
	}
	unlock()
}

func TestIndependentKeys(t *testing.T) {
	a := New(100 * time.Millisecond)

	unlockGold, err := a.Lock(context.Background(), "gold")
	if err != nil {
		t.Fatalf("lock gold failed: %v", err)
	}
	defer unlockGold()

	// A different key is not blocked by the held gold lock.
	unlockSilver, err := a.Lock(context.Background(), "silver")
	if err != nil {
		t.Fatalf("lock silver should not contend with gold: %v", err)
	}
	unlockSilver()
}

func TestTimeout(t *testing.T) {
	a := New(50 * time.Millisecond)

	unlock, err := a.Lock(context.Background(), "gold")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	defer unlock()

	_, err = a.Lock(context.Background(), "gold")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestContextCancel(t *testing.T) {
	a := New(time.Minute)

	unlock, err := a.Lock(context.Background(), "gold")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = a.Lock(ctx, "gold")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSerialization(t *testing.T) {
	a := New(5 * time.Second)

	// N goroutines increment a counter under the same key; with exclusive
	// locking the read-modify-write never loses an update.
	const n = 50
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := a.Lock(context.Background(), "gold")
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			unlock()
		}()
	}
	wg.Wait()

	if counter != n {
		t.Fatalf("expected %d increments, got %d", n, counter)
	}
}

func TestEntryCleanup(t *testing.T) {
	a := New(time.Second)

	unlock, _ := a.Lock(context.Background(), "gold")
	unlock()

	a.mu.Lock()
	remaining := len(a.locks)
	a.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("uncontended entries should be removed, %d remain", remaining)
	}
}
