package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultLimiterIdle is how long an actor's bucket survives without traffic.
const defaultLimiterIdle = 10 * time.Minute

type actorBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// ActorRateLimiter keeps one token bucket per actor. Buckets idle for longer
// than Idle are dropped; a dropped actor starts again with a full burst.
type ActorRateLimiter struct {
	Idle time.Duration

	mu        sync.Mutex
	buckets   map[string]*actorBucket
	r         rate.Limit
	b         int
	now       func() time.Time
	lastSweep time.Time
}

func NewActorRateLimiter(r rate.Limit, b int) *ActorRateLimiter {
	return &ActorRateLimiter{
		Idle:      defaultLimiterIdle,
		buckets:   make(map[string]*actorBucket),
		r:         r,
		b:         b,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

func (l *ActorRateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.Idle {
		l.sweep(now)
	}

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &actorBucket{lim: rate.NewLimiter(l.r, l.b)}
		l.buckets[key] = bucket
	}
	bucket.seen = now
	return bucket.lim
}

// sweep drops idle buckets. Caller holds mu.
func (l *ActorRateLimiter) sweep(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.seen) >= l.Idle {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// Middleware answers 429 once an actor exceeds its budget. It runs after
// Authenticate; a zero rate disables it.
func (l *ActorRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.r == 0 {
			next.ServeHTTP(w, r)
			return
		}
		actor, ok := ActorFrom(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if !l.limiter(string(actor.ID)).Allow() {
			writeError(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
