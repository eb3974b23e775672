// Package ratelimit throttles how often actors perform operations within a
// phase.
package ratelimit

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ratePattern matches "100 per 1s", "5 per 250ms", "10/s".
var ratePattern = regexp.MustCompile(`^\s*(\d+)\s*(?:per\s+(\S+)|/\s*s)\s*$`)

// Rate is a number of operations allowed per period.
type Rate struct {
	Ops    int
	Period time.Duration
}

// ParseRate parses "N per DURATION" (e.g. "100 per 1s") or "N/s".
func ParseRate(s string) (Rate, error) {
	m := ratePattern.FindStringSubmatch(s)
	if m == nil {
		return Rate{}, fmt.Errorf("invalid rate %q: want \"N per DURATION\" or \"N/s\"", s)
	}
	ops, err := strconv.Atoi(m[1])
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	period := time.Second
	if m[2] != "" {
		period, err = time.ParseDuration(m[2])
		if err != nil {
			return Rate{}, fmt.Errorf("invalid rate %q: %w", s, err)
		}
	}
	if period <= 0 {
		return Rate{}, fmt.Errorf("invalid rate %q: period must be positive", s)
	}
	return Rate{Ops: ops, Period: period}, nil
}

// PerSecond returns the rate as operations per second.
func (r Rate) PerSecond() float64 {
	if r.Period <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Period.Seconds()
}

func (r Rate) String() string {
	return fmt.Sprintf("%d per %v", r.Ops, r.Period)
}

// RateLimiter is shared by every goroutine of one actor block so the
// configured rate is global across them. A zero rate disables limiting.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

func NewRateLimiter(r Rate) *RateLimiter {
	burst := r.Ops
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(r.PerSecond()), burst),
	}
}

// Wait blocks until one operation is allowed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.RLock()
	limiter := r.limiter
	limit := limiter.Limit()
	r.mu.RUnlock()

	if limit == 0 {
		return nil
	}
	return limiter.Wait(ctx)
}

// SetRate changes the rate for every goroutine sharing this limiter.
func (r *RateLimiter) SetRate(rt Rate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	burst := rt.Ops
	if burst < 1 {
		burst = 1
	}
	r.limiter.SetLimit(rate.Limit(rt.PerSecond()))
	r.limiter.SetBurst(burst)
}
