package http

import (
	"sync"
	"time"
)

// frameLimiter is a token bucket over inbound frames. The bucket holds up to
// perMinute tokens and refills continuously, so a quiet client can burst a full
// minute's allowance. Refill is computed on demand; no timer goroutine is kept.
type frameLimiter struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	perSec   float64
	last     time.Time
	now      func() time.Time
}

// newFrameLimiter returns nil when perMinute is not positive; a nil limiter
// admits everything.
func newFrameLimiter(perMinute int) *frameLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &frameLimiter{
		capacity: float64(perMinute),
		tokens:   float64(perMinute),
		perSec:   float64(perMinute) / time.Minute.Seconds(),
		last:     time.Now(),
		now:      time.Now,
	}
}

func (l *frameLimiter) allow() bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if elapsed := now.Sub(l.last).Seconds(); elapsed > 0 {
		l.tokens = min(l.capacity, l.tokens+elapsed*l.perSec)
		l.last = now
	}
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
