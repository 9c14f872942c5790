package ghclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketEmptyWaitFormula(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := fixed
	clock := func() time.Time { return now }

	b := newTokenBucket(1, 1.0/1000.0, clock) // 1 token/sec
	b.tokens = 0.25

	wait := b.waitFor()
	// deficit = 0.75, refillPerMs = 0.001 => 750ms
	assert.Equal(t, 750*time.Millisecond, wait)
}

func TestTokenBucketRefillsLinearlyOverElapsedTime(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := fixed
	clock := func() time.Time { return now }

	b := newTokenBucket(10, 1.0/1000.0, clock)
	b.tokens = 0

	now = fixed.Add(5 * time.Second)
	wait := b.waitFor()
	assert.Equal(t, time.Duration(0), wait, "5000ms * 1/1000 per ms = 5 tokens, enough for 1")
}

func TestTokenBucketRefillClampsToCapacity(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := fixed
	clock := func() time.Time { return now }

	b := newTokenBucket(5, 1.0, clock)
	b.tokens = 0

	now = fixed.Add(time.Hour)
	b.refill()
	assert.Equal(t, 5.0, b.tokens)
}

func TestSearchBucketCapacityAndRefillRate(t *testing.T) {
	b := newSearchBucket(time.Now)
	assert.Equal(t, 30.0, b.capacity)
	assert.InDelta(t, 30.0/60000.0, b.refillPerMs, 1e-12)
}

func TestCoreBucketCapacityAndRefillRate(t *testing.T) {
	b := newCoreBucket(time.Now)
	assert.Equal(t, 5000.0, b.capacity)
	assert.InDelta(t, 5000.0/3600000.0, b.refillPerMs, 1e-12)
}

func TestConsumeBlocksUntilTokenAvailable(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := fixed
	clock := func() time.Time { return now }

	b := newTokenBucket(1, 1.0/1000.0, clock)
	b.tokens = 0

	var slept []time.Duration
	sleep := func(d time.Duration) {
		slept = append(slept, d)
		now = now.Add(d)
	}

	b.consume(sleep)
	assert.Len(t, slept, 1)
	assert.Equal(t, 1000*time.Millisecond, slept[0])
}
