package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhaustion(t *testing.T) {
	bucket := NewTokenBucket(3, 1, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, _ := bucket.Allow()
		assert.True(t, allowed, "token %d should be allowed", i)
	}

	allowed, wait := bucket.Allow()
	assert.False(t, allowed)
	assert.Greater(t, wait, time.Duration(0))
}

func TestTokenBucketRefill(t *testing.T) {
	bucket := NewTokenBucket(1, 1, 10*time.Millisecond)

	allowed, _ := bucket.Allow()
	assert.True(t, allowed)

	allowed, _ = bucket.Allow()
	assert.False(t, allowed)

	time.Sleep(15 * time.Millisecond)

	allowed, _ = bucket.Allow()
	assert.True(t, allowed)
}

func TestRateLimiterPerUserAndAction(t *testing.T) {
	rl := NewRateLimiter()

	// Exhaust alice's conversation-create bucket.
	for i := 0; i < 5; i++ {
		allowed, _ := rl.Allow("alice", "create_conversation")
		assert.True(t, allowed)
	}
	allowed, _ := rl.Allow("alice", "create_conversation")
	assert.False(t, allowed)

	// Other users and other actions have their own buckets.
	allowed, _ = rl.Allow("bob", "create_conversation")
	assert.True(t, allowed)
	allowed, _ = rl.Allow("alice", "send_message")
	assert.True(t, allowed)
}

func TestCleanupRemovesIdleBuckets(t *testing.T) {
	rl := NewRateLimiter()
	rl.Allow("alice", "typing")

	rl.mutex.RLock()
	bucket := rl.buckets["alice:typing"]
	rl.mutex.RUnlock()
	assert.NotNil(t, bucket)

	bucket.lastRefill = time.Now().Add(-2 * time.Hour)
	rl.Cleanup()

	rl.mutex.RLock()
	_, exists := rl.buckets["alice:typing"]
	rl.mutex.RUnlock()
	assert.False(t, exists)
}
