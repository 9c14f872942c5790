package ghclient

import (
	"math"
	"sync"
	"time"
)

// Bucket names, a closed set.
const (
	BucketSearch = "search"
	BucketCore   = "core"
)

// tokenBucket refills continuously based on elapsed wall-clock time since
// the last observation, clamped to capacity. Hand-rolled rather than
// golang.org/x/time/rate because the boundary tests require introspecting
// the exact wait duration before a token becomes available, which that
// library's Reserve/Wait API does not expose directly.
type tokenBucket struct {
	mu             sync.Mutex
	capacity       float64
	refillPerMs    float64
	tokens         float64
	lastObserved   time.Time
	now            func() time.Time
}

func newTokenBucket(capacity float64, refillPerMs float64, now func() time.Time) *tokenBucket {
	if now == nil {
		now = time.Now
	}
	return &tokenBucket{
		capacity:     capacity,
		refillPerMs:  refillPerMs,
		tokens:       capacity,
		lastObserved: now(),
		now:          now,
	}
}

// newSearchBucket returns a bucket with capacity 30, refill 30/minute.
func newSearchBucket(now func() time.Time) *tokenBucket {
	return newTokenBucket(30, 30.0/60000.0, now)
}

// newCoreBucket returns a bucket with capacity 5000, refill 5000/hour.
func newCoreBucket(now func() time.Time) *tokenBucket {
	return newTokenBucket(5000, 5000.0/3600000.0, now)
}

// refill advances tokens by elapsed time since lastObserved, clamped to
// capacity. Caller must hold mu.
func (b *tokenBucket) refill() {
	now := b.now()
	elapsedMs := float64(now.Sub(b.lastObserved).Milliseconds())
	if elapsedMs > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsedMs*b.refillPerMs)
		b.lastObserved = now
	}
}

// waitFor returns the duration the caller must wait before a token is
// available, or zero if one is available now. It does not consume a token.
func (b *tokenBucket) waitFor() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		return 0
	}
	deficit := 1 - b.tokens
	waitMs := math.Ceil(deficit / b.refillPerMs)
	return time.Duration(waitMs) * time.Millisecond
}

// consume blocks (via the injected sleep function) until a token is
// available, then takes one.
func (b *tokenBucket) consume(sleep func(time.Duration)) {
	for {
		wait := b.waitFor()
		if wait == 0 {
			break
		}
		sleep(wait)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	b.tokens -= 1
}
