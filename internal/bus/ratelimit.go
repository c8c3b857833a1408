package bus

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket per event source, refilled over a 60s
// window to a configurable capacity (spec §4.1). Built on golang.org/x/time/
// rate, already an indirect dependency of the teacher's agents/manager
// module via the Temporal SDK; promoted here to a direct, load-bearing use.
type RateLimiter struct {
	mu       sync.Mutex
	capacity int
	buckets  map[string]*rate.Limiter
}

// NewRateLimiter returns a limiter with the given per-source bucket
// capacity, refilling fully over 60 seconds.
func NewRateLimiter(capacity int) *RateLimiter {
	if capacity <= 0 {
		capacity = 6
	}
	return &RateLimiter{capacity: capacity, buckets: make(map[string]*rate.Limiter)}
}

func (r *RateLimiter) bucketFor(source string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.buckets[source]
	if !ok {
		// One token added every 60s/capacity, burst = full capacity, so a
		// quiet source can burst up to `capacity` actions immediately and
		// then trickles back in over the window — matching spec's "refill
		// window = 60s, default capacity = 6".
		perToken := 60 * time.Second / time.Duration(r.capacity)
		lim = rate.NewLimiter(rate.Every(perToken), r.capacity)
		r.buckets[source] = lim
	}
	return lim
}

// Allow reports whether source may proceed right now, consuming a token if
// so. Rate limits reset on process restart: buckets are in-memory only
// (spec §5, "Ordering guarantees").
func (r *RateLimiter) Allow(source string) bool {
	return r.bucketFor(source).Allow()
}
