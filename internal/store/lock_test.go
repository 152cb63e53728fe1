package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLockTable_AcquireRelease(t *testing.T) {
	lt := newLockTable()
	ctx := context.Background()

	if err := lt.acquire(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if !lt.isHeld("a") {
		t.Error("lock not reported as held")
	}
	if lt.tryAcquire("a") {
		t.Error("tryAcquire() succeeded on held lock")
	}
	if !lt.tryAcquire("b") {
		t.Error("tryAcquire() failed on free lock")
	}
	if err := lt.release("a"); err != nil {
		t.Fatal(err)
	}
	if err := lt.release("b"); err != nil {
		t.Fatal(err)
	}
	if len(lt.slots) != 0 {
		t.Errorf("idle slots not dropped: %d left", len(lt.slots))
	}
}

func TestLockTable_ReleaseUnheld(t *testing.T) {
	lt := newLockTable()
	if err := lt.release("a"); !errors.Is(err, ErrNotLocked) {
		t.Errorf("release() = %v, want ErrNotLocked", err)
	}
}

func TestLockTable_CancelledWaiterLeavesNoSlot(t *testing.T) {
	lt := newLockTable()
	if err := lt.acquire(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := lt.acquire(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("acquire() = %v, want deadline exceeded", err)
	}

	if err := lt.release("a"); err != nil {
		t.Fatal(err)
	}
	if len(lt.slots) != 0 {
		t.Errorf("slots left after cancelled waiter: %d", len(lt.slots))
	}
}
