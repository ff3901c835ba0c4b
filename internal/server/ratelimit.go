package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter allows a fixed number of requests per client within a sliding
// window.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	hits   map[string][]time.Time
}

// NewRateLimiter allows limit requests per window for each client.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records a request from client, or returns a *RateLimitError when the
// client is over its limit.
func (rl *RateLimiter) Allow(client string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	recent := rl.hits[client][:0]
	for _, t := range rl.hits[client] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= rl.limit {
		rl.hits[client] = recent
		return &RateLimitError{Limit: rl.limit, Window: rl.window, RetryAfter: recent[0].Add(rl.window).Sub(now)}
	}
	rl.hits[client] = append(recent, now)
	return nil
}

// Usage returns how many requests client made in the current window.
func (rl *RateLimiter) Usage(client string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.window)
	n := 0
	for _, t := range rl.hits[client] {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%d requests per %v, retry after %v)",
		e.Limit, e.Window, e.RetryAfter.Round(time.Second))
}
