// Package ratelimit provides request throttling for the remote store using a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultBurst is the bucket capacity used when the caller only configures a rate.
const DefaultBurst = 10.0

// RateLimiter implements a token bucket rate limiter.
// It allows bursts up to maxTokens, then refills at refillRate tokens/second.
// A nil *RateLimiter never blocks.
type RateLimiter struct {
	tokens        float64   // Current number of tokens available
	maxTokens     float64   // Maximum bucket capacity
	refillRate    float64   // Tokens added per second
	lastRefill    time.Time // Last time tokens were refilled
	lastWarnTime  time.Time // Last time we warned about throttling
	cooldownUntil time.Time // No tokens are granted before this instant
	mu            sync.Mutex
}

// NewRateLimiter creates a new rate limiter.
//
// Parameters:
//   - tokensPerSecond: Rate at which tokens are added (e.g., 3.0 for 3 tokens/second)
//   - burstSize: Maximum tokens that can accumulate (allows brief bursts)
func NewRateLimiter(tokensPerSecond float64, burstSize float64) *RateLimiter {
	return &RateLimiter{
		tokens:     burstSize, // Start with full bucket
		maxTokens:  burstSize,
		refillRate: tokensPerSecond,
		lastRefill: time.Now(),
	}
}

// NewStoreRateLimiter returns a limiter for store requests at ratePerSecond,
// or nil (unlimited) when ratePerSecond <= 0.
func NewStoreRateLimiter(ratePerSecond float64) *RateLimiter {
	if ratePerSecond <= 0 {
		return nil
	}
	burst := DefaultBurst
	if ratePerSecond > burst {
		burst = ratePerSecond
	}
	return NewRateLimiter(ratePerSecond, burst)
}

// Wait blocks until a token is available or context is cancelled.
// Returns an error if the context is cancelled before a token becomes available.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}

	startTime := time.Now()

	if rl.tryAcquire() {
		return nil
	}

	waitTime := rl.timeUntilNextToken()
	if waitTime > 2*time.Second {
		rl.mu.Lock()
		// Only warn every 10 seconds to avoid spam
		if time.Since(rl.lastWarnTime) > 10*time.Second {
			log.Warn().Msgf("Rate limited: waiting ~%.1fs for store capacity", waitTime.Seconds())
			rl.lastWarnTime = time.Now()
		}
		rl.mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if rl.tryAcquire() {
			if actualWait := time.Since(startTime); actualWait > 5*time.Second {
				log.Debug().Msgf("Rate limit wait completed after %.1fs", actualWait.Seconds())
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.timeUntilNextToken()):
		}
	}
}

// tryAcquire attempts to acquire one token without blocking.
// Returns true if a token was acquired, false otherwise.
func (rl *RateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.refillLocked(now)

	if now.Before(rl.cooldownUntil) {
		return false
	}

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}

	return false
}

func (rl *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

// timeUntilNextToken calculates how long to wait until at least one token is available.
func (rl *RateLimiter) timeUntilNextToken() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cd := time.Until(rl.cooldownUntil); cd > 0 {
		return cd
	}

	tokensNeeded := 1.0 - rl.tokens
	if tokensNeeded <= 0 {
		return 0
	}

	secondsNeeded := tokensNeeded / rl.refillRate
	return time.Duration(secondsNeeded * float64(time.Second))
}

// Drain empties the bucket, e.g. after the store answered 429.
func (rl *RateLimiter) Drain() {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = 0
	rl.lastRefill = time.Now()
}

// SetCooldown blocks all acquisitions for d. A shorter cooldown never
// shortens one already in effect.
func (rl *RateLimiter) SetCooldown(d time.Duration) {
	if rl == nil || d <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(rl.cooldownUntil) {
		rl.cooldownUntil = until
	}
}

// CooldownRemaining returns how long the current cooldown lasts, or 0.
func (rl *RateLimiter) CooldownRemaining() time.Duration {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if d := time.Until(rl.cooldownUntil); d > 0 {
		return d
	}
	return 0
}

// GetCurrentTokens returns the current number of tokens (for testing/debugging).
func (rl *RateLimiter) GetCurrentTokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	elapsed := time.Since(rl.lastRefill).Seconds()
	tokens := rl.tokens + (elapsed * rl.refillRate)

	if tokens > rl.maxTokens {
		tokens = rl.maxTokens
	}

	return tokens
}
