// Package ratelimit throttles MCP tool calls with per-key token buckets.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter is a token bucket limiter keeping one bucket per key. It is safe
// for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // bucket capacity and initial fill
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// take refills b for the time elapsed since its last use and spends one
// token if available.
func (b *bucket) take(now time.Time, rate float64, burst int) bool {
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+rate*elapsed, float64(burst))
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// NewLimiter creates a limiter refilling at rate tokens per second with
// the given burst capacity.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether a call for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), last: now}
		l.buckets[key] = b
	}
	return b.take(now, l.rate, l.burst)
}

// ToolLimiters maps tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the default limits for the contagion tools.
// Simulation tools are the expensive ones and get the tighter budget.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"contagion_cascade":  NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"contagion_epidemic": NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"contagion_runs":     NewLimiter(1.0, 10),      // 60/minute, burst 10
	}
}

// CheckLimit returns an error when tool has exhausted its budget. Tools
// without a limiter are never throttled.
func CheckLimit(limiters ToolLimiters, tool string) error {
	l, ok := limiters[tool]
	if !ok {
		return nil
	}
	if !l.Allow(tool) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", tool)
	}
	return nil
}
