package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter throttles login attempts per subject to blunt online
// brute-force attacks before the expensive hash comparison runs. Each
// subject gets its own token bucket.
type LoginLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

// NewLoginLimiter allows `attempts` logins per `window` for one subject,
// with the whole budget available as a burst.
func NewLoginLimiter(attempts int, window time.Duration) *LoginLimiter {
	if attempts <= 0 {
		attempts = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LoginLimiter{
		rate:        rate.Limit(float64(attempts) / window.Seconds()),
		burst:       attempts,
		lastCleanup: time.Now(),
	}
}

// Allow reports whether another attempt is permitted for the subject key.
func (l *LoginLimiter) Allow(key string) bool {
	limiter := l.getLimiter(key)
	allowed := limiter.Allow()
	l.maybeCleanup()
	return allowed
}

func (l *LoginLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return actual.(*rate.Limiter)
}

// maybeCleanup drops buckets that have refilled completely, meaning the
// subject has been idle for at least a full window. Keeps the map from
// growing without bound across many one-off subjects.
func (l *LoginLimiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < 5*time.Minute {
		return
	}
	l.lastCleanup = time.Now()

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}
