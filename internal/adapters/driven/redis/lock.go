package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

const slotPrefix = "codex:slot:"

// Lock implements DistributedLock over Redis. Each (edition, volume)
// ingest slot maps to one key whose value is the holder's identity, so
// release and lease extension only ever act on a slot this worker owns.
type Lock struct {
	client *redis.Client
	holder string
}

// NewLock creates a Redis-backed slot lock for one worker instance.
func NewLock(client *redis.Client) *Lock {
	return &Lock{
		client: client,
		holder: holderIdentity(),
	}
}

// holderIdentity tags slot keys with hostname:pid:random so two workers
// on the same host never collide.
func holderIdentity() string {
	hostname, _ := os.Hostname()
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(nonce))
}

func slotKey(name string) string {
	return slotPrefix + name
}

// Acquire claims a slot for the lease duration. SETNX keeps the claim
// atomic: false means another worker holds the slot.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, slotKey(name), l.holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire slot %s: %w", name, err)
	}
	return ok, nil
}

// releaseScript frees a slot only when the stored holder matches, so a
// worker whose lease already expired cannot release a successor's claim.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release frees a slot held by this worker. Releasing a slot that
// expired or belongs to another holder is a no-op.
func (l *Lock) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{slotKey(name)}, l.holder).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release slot %s: %w", name, err)
	}
	return nil
}

// extendScript renews the lease only while the stored holder matches.
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Extend renews this worker's lease on a slot. Long batches call this
// between files so the slot survives past the original TTL. Fails when
// the lease already lapsed and someone else claimed the slot.
func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{slotKey(name)}, l.holder, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("extend slot %s: %w", name, err)
	}
	if result.(int64) == 0 {
		return fmt.Errorf("slot %s not held by this worker", name)
	}
	return nil
}

// Ping checks that the Redis backend is reachable.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// HolderID returns this worker's slot-holder identity, mainly for logs.
func (l *Lock) HolderID() string {
	return l.holder
}
