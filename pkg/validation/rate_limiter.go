package validation

import (
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket. Each client may spend
// maxRequests tokens per window; tokens refill proportionally to elapsed time.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	clients     map[string]*clientLimiter
	mu          sync.Mutex
	cleanupTick *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

type clientLimiter struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// NewRateLimiter creates a new rate limiter with specified limits
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		clients:     make(map[string]*clientLimiter),
		done:        make(chan struct{}),
		cleanupTick: time.NewTicker(window),
	}
	go rl.cleanup()
	return rl
}

// Allow consumes a token for clientID if one is available.
func (rl *RateLimiter) Allow(clientID string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[clientID]
	if !ok {
		cl = &clientLimiter{tokens: float64(rl.maxRequests), lastRefill: now}
		rl.clients[clientID] = cl
	}
	cl.lastSeen = now

	if elapsed := now.Sub(cl.lastRefill); elapsed > 0 {
		cl.tokens += float64(rl.maxRequests) * float64(elapsed) / float64(rl.window)
		if cl.tokens > float64(rl.maxRequests) {
			cl.tokens = float64(rl.maxRequests)
		}
		cl.lastRefill = now
	}

	if cl.tokens >= 1 {
		cl.tokens--
		return true
	}
	return false
}

// Forget removes the bucket for clientID.
func (rl *RateLimiter) Forget(clientID string) {
	rl.mu.Lock()
	delete(rl.clients, clientID)
	rl.mu.Unlock()
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.removeInactiveClients()
		case <-rl.done:
			return
		}
	}
}

// removeInactiveClients removes clients idle for more than two windows
func (rl *RateLimiter) removeInactiveClients() {
	cutoff := time.Now().Add(-2 * rl.window)

	rl.mu.Lock()
	for id, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
		}
	}
	rl.mu.Unlock()
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.done)
		rl.cleanupTick.Stop()
	})
}
