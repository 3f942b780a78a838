package workflow

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	id := uuid.New()

	var mu sync.Mutex
	var order []string

	unlock := k.Lock(id)
	done := make(chan struct{})
	go func() {
		unlock2 := k.Lock(id)
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		unlock2()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, "first")
	mu.Unlock()
	unlock()

	<-done

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

func TestKeyedMutexDistinctKeysDoNotBlock(t *testing.T) {
	k := newKeyedMutex()
	a, b := uuid.New(), uuid.New()

	unlockA := k.Lock(a)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := k.Lock(b)
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on distinct key blocked")
	}
}

func TestKeyedMutexEntryRemovedAfterUnlock(t *testing.T) {
	k := newKeyedMutex()
	id := uuid.New()

	unlock := k.Lock(id)
	unlock()

	k.mu.Lock()
	_, exists := k.m[id]
	k.mu.Unlock()

	if exists {
		t.Fatal("lock entry not cleaned up after final unlock")
	}
}
