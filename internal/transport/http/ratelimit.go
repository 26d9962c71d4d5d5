package http

import "time"

// commandLimiter caps inbound commands per connection within a fixed window.
// It is only ever touched from the connection's read loop, so it needs no
// locking.
type commandLimiter struct {
	limit       int
	window      time.Duration
	counter     int
	windowStart time.Time
	now         func() time.Time
}

func newCommandLimiter(limit int, window time.Duration) *commandLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &commandLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *commandLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := r.now()
	if now.Sub(r.windowStart) >= r.window {
		r.windowStart = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
