package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestActorRateLimiter_DropsIdleBuckets(t *testing.T) {
	// GIVEN: a limiter with a controllable clock
	clock := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	l := NewActorRateLimiter(rate.Limit(1), 1)
	l.now = func() time.Time { return clock }
	l.lastSweep = clock

	l.limiter("ann")
	clock = clock.Add(5 * time.Minute)
	l.limiter("ben")
	assert.Len(t, l.buckets, 2)

	// WHEN: ann stays quiet past the idle window while ben keeps calling
	clock = clock.Add(6 * time.Minute)
	l.limiter("ben")

	// THEN: only ben's bucket is kept
	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "ben")
}

func TestActorRateLimiter_ReturnsSameBucketWhileActive(t *testing.T) {
	l := NewActorRateLimiter(rate.Limit(1), 1)

	assert.Same(t, l.limiter("ann"), l.limiter("ann"))
}
