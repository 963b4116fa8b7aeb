// Package middleware provides reusable oracle.Oracle middlewares such as
// adaptive rate limiting.
package middleware

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"goa.design/aide/runtime/agent/oracle"
)

type (
	// AdaptiveRateLimiter applies an AIMD-style adaptive token bucket on top of
	// an oracle.Oracle. It estimates the token cost of each decision, blocks
	// callers until capacity is available, and adjusts its effective
	// tokens-per-minute budget in response to rate limiting signals from the
	// provider.
	//
	// The limiter is process-local and designed to sit at the provider client
	// boundary. Callers construct a single instance per process and wrap the
	// provider oracle with Middleware before passing it to the runtime.
	AdaptiveRateLimiter struct {
		mu sync.Mutex

		limiter *rate.Limiter

		currentTPM float64
		minTPM     float64
		maxTPM     float64

		recoveryRate float64
	}

	limitedOracle struct {
		next    oracle.Oracle
		limiter *AdaptiveRateLimiter
	}
)

// NewAdaptiveRateLimiter constructs an AdaptiveRateLimiter configured with an
// initial tokens-per-minute budget and an upper bound. The limiter uses a
// simple AIMD strategy: halve the budget on rate limit errors, creep back up
// on successful decisions.
//
// initialTPM and maxTPM are expressed in tokens per minute. When maxTPM is
// zero or less than initialTPM, it is clamped to initialTPM.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		// Default to a conservative budget when callers do not provide one.
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	lim := rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM))

	return &AdaptiveRateLimiter{
		limiter:      lim,
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Middleware returns an oracle.Oracle middleware that enforces the adaptive
// tokens-per-minute limit on every Decide call.
func (l *AdaptiveRateLimiter) Middleware() func(oracle.Oracle) oracle.Oracle {
	return func(next oracle.Oracle) oracle.Oracle {
		if next == nil {
			return nil
		}
		return &limitedOracle{
			next:    next,
			limiter: l,
		}
	}
}

// Decide enforces the limiter before delegating to the underlying oracle.
func (o *limitedOracle) Decide(ctx context.Context, in oracle.Input) (oracle.Action, error) {
	if err := o.limiter.wait(ctx, in); err != nil {
		return oracle.Action{}, err
	}
	act, err := o.next.Decide(ctx, in)
	o.limiter.observe(err)
	return act, err
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, in oracle.Input) error {
	tokens := estimateTokens(in)
	return l.limiter.WaitN(ctx, tokens)
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, oracle.ErrRateLimited) {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// currentBudget reports the effective tokens-per-minute budget.
func (l *AdaptiveRateLimiter) currentBudget() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// estimateTokens computes a cheap heuristic for the number of tokens in the
// decision input. It counts characters in the transcript, converts them to
// tokens using a fixed ratio, and adds a small buffer for system prompts and
// provider overhead.
func estimateTokens(in oracle.Input) int {
	charCount := 0
	for _, t := range in.Turns {
		charCount += len(t.Content)
	}
	if charCount <= 0 {
		// Minimal non-zero estimate so callers still incur limiter costs even
		// when transcripts are extremely small.
		return 500
	}
	// Approximate 1 token per ~3 characters, then add a fixed buffer for
	// system prompts and provider framing.
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
