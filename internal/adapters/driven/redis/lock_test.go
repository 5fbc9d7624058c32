package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return mr, client, func() {
		client.Close()
		mr.Close()
	}
}

func TestLock_SlotExclusion(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	worker1 := NewLock(client)
	worker2 := NewLock(client)
	ctx := context.Background()

	if worker1.HolderID() == worker2.HolderID() {
		t.Fatalf("expected unique holder identities, got same: %s", worker1.HolderID())
	}

	// Worker 1 claims the (edition, volume) slot
	acquired, err := worker1.Acquire(ctx, "ingest:bca-2025:vol-one", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected worker1 to acquire the slot")
	}

	// Worker 2 cannot claim the same slot
	acquired, err = worker2.Acquire(ctx, "ingest:bca-2025:vol-one", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected worker2 to be locked out")
	}

	// A different volume is a different slot
	acquired, err = worker2.Acquire(ctx, "ingest:bca-2025:vol-two", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected worker2 to acquire a different slot")
	}
}

func TestLock_ReleaseFreesSlot(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	worker1 := NewLock(client)
	worker2 := NewLock(client)
	ctx := context.Background()

	acquired, err := worker1.Acquire(ctx, "ingest:bca-2025:vol-one", 10*time.Second)
	if err != nil || !acquired {
		t.Fatalf("acquire failed: acquired=%v err=%v", acquired, err)
	}

	if err := worker1.Release(ctx, "ingest:bca-2025:vol-one"); err != nil {
		t.Fatalf("unexpected error on release: %v", err)
	}

	acquired, err = worker2.Acquire(ctx, "ingest:bca-2025:vol-one", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected slot to be free after release")
	}
}

func TestLock_ReleaseByDifferentOwnerIsNoop(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	holder := NewLock(client)
	intruder := NewLock(client)
	ctx := context.Background()

	acquired, err := holder.Acquire(ctx, "ingest:bca-2025:vol-one", 10*time.Second)
	if err != nil || !acquired {
		t.Fatalf("acquire failed: acquired=%v err=%v", acquired, err)
	}

	// A non-holder release must not free the slot
	if err := intruder.Release(ctx, "ingest:bca-2025:vol-one"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired, err = intruder.Acquire(ctx, "ingest:bca-2025:vol-one", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected slot to still be held")
	}
}

func TestLock_TTLExpiry(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	worker1 := NewLock(client)
	worker2 := NewLock(client)
	ctx := context.Background()

	acquired, err := worker1.Acquire(ctx, "ingest:bca-2025:vol-one", 1*time.Second)
	if err != nil || !acquired {
		t.Fatalf("acquire failed: acquired=%v err=%v", acquired, err)
	}

	// A crashed worker never releases; the TTL frees the slot
	mr.FastForward(2 * time.Second)

	acquired, err = worker2.Acquire(ctx, "ingest:bca-2025:vol-one", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected slot to be free after TTL expiry")
	}
}

func TestLock_Extend(t *testing.T) {
	mr, client, cleanup := setupTestRedis(t)
	defer cleanup()

	worker1 := NewLock(client)
	worker2 := NewLock(client)
	ctx := context.Background()

	acquired, err := worker1.Acquire(ctx, "ingest:bca-2025:vol-one", 1*time.Second)
	if err != nil || !acquired {
		t.Fatalf("acquire failed: acquired=%v err=%v", acquired, err)
	}

	// A long batch extends its lease mid-flight
	if err := worker1.Extend(ctx, "ingest:bca-2025:vol-one", 10*time.Second); err != nil {
		t.Fatalf("unexpected error on extend: %v", err)
	}

	mr.FastForward(2 * time.Second)

	acquired, err = worker2.Acquire(ctx, "ingest:bca-2025:vol-one", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected extended lock to still be held")
	}

	// Extending a slot you do not hold fails
	if err := worker2.Extend(ctx, "ingest:bca-2025:vol-one", 10*time.Second); err == nil {
		t.Error("expected error when non-holder extends")
	}
}

func TestLock_Ping(t *testing.T) {
	_, client, cleanup := setupTestRedis(t)
	defer cleanup()

	lock := NewLock(client)
	if err := lock.Ping(context.Background()); err != nil {
		t.Errorf("unexpected ping error: %v", err)
	}
}
