package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Bucket eviction cadence. Reservation bursts come from waiting rooms
// releasing a batch of patients at once, so a caller idle for a few
// minutes is done and its bucket can go.
const (
	sweepInterval = 5 * time.Minute
	idleEviction  = 10 * time.Minute
)

// ReserveLimiter sheds reservation bursts per caller IP with a token
// bucket. Every request it lets through takes row locks in the booking
// transaction, so shedding here keeps a stampede on a popular slot from
// queueing on the database and tripping lock_timeout for everyone.
type ReserveLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // sustained reserve attempts per second per IP
	burst   int     // extra attempts allowed up front
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewReserveLimiter allows rate attempts/sec per IP with the given
// burst headroom. A clinic front desk retrying a full slot stays inside
// the burst; a script hammering the endpoint does not.
func NewReserveLimiter(rate float64, burst int) *ReserveLimiter {
	rl := &ReserveLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
	}
	go rl.sweep()
	return rl
}

// Allow reports whether the attempt from ip fits the bucket, consuming
// one token when it does.
func (rl *ReserveLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: float64(rl.burst), lastSeen: now}
		rl.buckets[ip] = b
	}

	b.tokens += now.Sub(b.lastSeen).Seconds() * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// retryAfter estimates whole seconds until the next token refills.
func (rl *ReserveLimiter) retryAfter() int {
	if rl.rate <= 0 {
		return 1
	}
	secs := int(1 / rl.rate)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (rl *ReserveLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-idleEviction)
		for ip, b := range rl.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit wraps the reservation endpoint: attempts beyond the bucket
// get 429 with a Retry-After matching the refill cadence, the same
// retry contract the gate's 503 responses use.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	limiter := NewReserveLimiter(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			if !limiter.Allow(ip) {
				w.Header().Set("Retry-After", strconv.Itoa(limiter.retryAfter()))
				http.Error(w, "too many reservation attempts", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
