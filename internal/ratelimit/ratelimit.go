// Package ratelimit provides per-host token-bucket limiting for page
// fetches and a stricter global budget for the external AI strategy.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter hands out one token bucket per host. A worker about to
// fetch from a host at its limit blocks in Wait until a token frees up.
type HostLimiter struct {
	mu             sync.Mutex
	limiters       map[string]*rate.Limiter
	requestsPerMin int
	burst          int
}

// NewHostLimiter creates a limiter allowing requestsPerMin requests per
// minute per host.
func NewHostLimiter(requestsPerMin, burst int) *HostLimiter {
	if requestsPerMin <= 0 {
		requestsPerMin = 30
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		limiters:       make(map[string]*rate.Limiter),
		requestsPerMin: requestsPerMin,
		burst:          burst,
	}
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(h.requestsPerMin)/60.0), h.burst)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until a request to host is allowed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.limiter(host).Wait(ctx)
}

// Allow reports whether a request to host would be admitted right now,
// consuming a token if so.
func (h *HostLimiter) Allow(host string) bool {
	return h.limiter(host).Allow()
}

// Budget enforces a dual-window global limit (per minute and per hour)
// for the external AI strategy. Exceeding it blocks the caller until the
// window rolls over; listings are never silently dropped.
type Budget struct {
	perMinute *rate.Limiter
	perHour   *rate.Limiter
}

// NewBudget creates a Budget with the given per-minute and per-hour caps.
// A cap of zero or less disables that window.
func NewBudget(callsPerMinute, callsPerHour int) *Budget {
	b := &Budget{}
	if callsPerMinute > 0 {
		b.perMinute = rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), 1)
	}
	if callsPerHour > 0 {
		b.perHour = rate.NewLimiter(rate.Limit(float64(callsPerHour)/3600.0), 1)
	}
	return b
}

// Wait blocks until both windows admit one call or ctx is done.
func (b *Budget) Wait(ctx context.Context) error {
	if b.perMinute != nil {
		if err := b.perMinute.Wait(ctx); err != nil {
			return err
		}
	}
	if b.perHour != nil {
		if err := b.perHour.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
