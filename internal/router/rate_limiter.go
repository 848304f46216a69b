package router

import (
	"context"
	"sync"
	"time"
)

const (
	rateLimitPerWindow = 100
	rateLimitWindow    = time.Minute
	staleAfter         = 5 * time.Minute
)

// RateLimiter caps send_message volume per user with a fixed per-minute
// window. Typing and presence traffic is not limited.
type RateLimiter struct {
	mu      sync.Mutex
	senders map[string]*senderWindow
}

type senderWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{senders: make(map[string]*senderWindow)}
}

// Allow reports whether userID may send another message right now.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	window, exists := rl.senders[userID]
	if !exists {
		rl.senders[userID] = &senderWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(window.windowStart) >= rateLimitWindow {
		window.count = 1
		window.windowStart = now
		return true
	}

	if window.count >= rateLimitPerWindow {
		return false
	}

	window.count++
	return true
}

// StartCleanup runs Cleanup on interval until ctx is cancelled.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Cleanup drops windows idle long enough to be irrelevant.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for userID, window := range rl.senders {
		if now.Sub(window.windowStart) > staleAfter {
			delete(rl.senders, userID)
		}
	}
}
