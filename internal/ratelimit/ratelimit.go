// Package ratelimit provides a per-owner request rate limiter. Quota
// bounds monthly spend; this bounds burst request rates so one client
// cannot monopolize the model backend inside a billing period.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per owner. Owners are added lazily on
// first request and share the same configured rate.
type Limiter struct {
	perSecond int
	mu        sync.Mutex
	owners    map[string]*rate.Limiter
}

// New creates a limiter allowing perSecond requests per owner with a burst
// of two seconds' worth. perSecond <= 0 disables limiting.
func New(perSecond int) *Limiter {
	return &Limiter{
		perSecond: perSecond,
		owners:    make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the owner may proceed now.
func (l *Limiter) Allow(ownerID string) bool {
	if l == nil || l.perSecond <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.owners[ownerID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.perSecond), l.perSecond*2)
		l.owners[ownerID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
