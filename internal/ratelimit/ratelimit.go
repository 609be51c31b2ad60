// Package ratelimit implements the per-source-IP token bucket that throttles
// handshake accept attempts (spec section 4.2.2 / 4.4.4), backed by
// golang.org/x/time/rate instead of the hand-rolled bucket
// original_source/core/async_proxy.py uses.
package ratelimit

import (
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a per-IP token bucket with periodic pruning of idle entries,
// grounded on async_proxy.py's _TokenBucket class (capacity, refill rate,
// and prune(idle_seconds)).
type Limiter struct {
	mu       sync.Mutex
	burst    int
	perSec   float64
	idleTTL  time.Duration
	buckets  map[netip.Addr]*entry
}

type entry struct {
	limiter    *rate.Limiter
	lastTouched time.Time
}

// New constructs a Limiter: burst is the bucket capacity, refillPerSec is
// the steady-state token refill rate, and idleTTL is how long an IP's
// bucket survives with no traffic before Prune reclaims it (spec section
// 6.1's HANDSHAKE_RL_BURST / HANDSHAKE_RL_REFILL_PER_SEC).
func New(burst int, refillPerSec float64, idleTTL time.Duration) *Limiter {
	return &Limiter{
		burst:   burst,
		perSec:  refillPerSec,
		idleTTL: idleTTL,
		buckets: make(map[netip.Addr]*entry),
	}
}

// Allow reports whether a handshake attempt from addr may proceed right
// now, consuming one token if so.
func (l *Limiter) Allow(addr netip.Addr) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.buckets[addr]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.perSec), l.burst)}
		l.buckets[addr] = e
	}
	e.lastTouched = time.Now()
	return e.limiter.Allow()
}

// Prune removes buckets untouched for longer than idleTTL, bounding memory
// use under a sustained address-scanning attack (async_proxy.py's
// _TokenBucket.prune, invoked on a periodic timer by the relay).
func (l *Limiter) Prune(now time.Time) (removed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for addr, e := range l.buckets {
		if now.Sub(e.lastTouched) > l.idleTTL {
			delete(l.buckets, addr)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked IPs, for diagnostics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
