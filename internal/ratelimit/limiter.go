// Package ratelimit implements the per-provider backpressure the LLM
// Adapter applies before dispatching a call: a token bucket keyed by
// provider name, configured with (tokens, requests, period). On exhaustion
// callers wait rather than fail.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limits is one provider's configured rate-limit policy.
type Limits struct {
	Tokens   int64         // max tokens per Period; 0 disables the token limit
	Requests int64         // max requests per Period; 0 disables the request limit
	Period   time.Duration
}

// CheckResult reports whether a call is currently allowed and, if not, how
// long the caller should wait before retrying.
type CheckResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

type bucketState struct {
	mu          sync.Mutex
	windowStart time.Time
	tokensUsed  int64
	requestsUsed int64
}

// Limiter holds one bucket per provider scope, refilled on a fixed window.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limits
	buckets map[string]*bucketState
}

func NewLimiter() *Limiter {
	return &Limiter{
		limits:  make(map[string]Limits),
		buckets: make(map[string]*bucketState),
	}
}

// Configure sets (or replaces) the policy for a provider scope.
func (l *Limiter) Configure(scope string, limits Limits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[scope] = limits
}

func (l *Limiter) bucket(scope string) *bucketState {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[scope]
	if !ok {
		b = &bucketState{windowStart: time.Now()}
		l.buckets[scope] = b
	}
	return b
}

// CheckAndRecord checks the provider's bucket and, if allowed, records the
// token/request usage atomically. If the bucket is exhausted, it reports how
// long to wait; it does not block itself, leaving that choice to Wait.
func (l *Limiter) CheckAndRecord(scope string, tokens int64) CheckResult {
	l.mu.Lock()
	limits, configured := l.limits[scope]
	l.mu.Unlock()
	if !configured || (limits.Tokens == 0 && limits.Requests == 0) {
		return CheckResult{Allowed: true}
	}

	b := l.bucket(scope)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Sub(b.windowStart) >= limits.Period {
		b.windowStart = now
		b.tokensUsed = 0
		b.requestsUsed = 0
	}

	wouldExceedTokens := limits.Tokens > 0 && b.tokensUsed+tokens > limits.Tokens
	wouldExceedRequests := limits.Requests > 0 && b.requestsUsed+1 > limits.Requests
	if wouldExceedTokens || wouldExceedRequests {
		retryAfter := limits.Period - now.Sub(b.windowStart)
		return CheckResult{Allowed: false, RetryAfter: retryAfter}
	}

	b.tokensUsed += tokens
	b.requestsUsed++
	return CheckResult{Allowed: true}
}

// Wait blocks until the provider's bucket admits a call for the given token
// estimate, or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, scope string, tokens int64) error {
	for {
		result := l.CheckAndRecord(scope, tokens)
		if result.Allowed {
			return nil
		}
		timer := time.NewTimer(result.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
