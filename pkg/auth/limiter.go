package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterPool hands out one token bucket per remote address. Entries idle
// past the TTL are evicted by a background sweep.
type limiterPool struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	seen  map[string]*limiterEntry
}

type limiterEntry struct {
	lim  *rate.Limiter
	last time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = 100
	}
	p := &limiterPool{rps: rate.Limit(rps), burst: burst, seen: map[string]*limiterEntry{}}
	go p.sweep()
	return p
}

// Allow reports whether the given key may proceed under its bucket.
func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	e, ok := p.seen[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(p.rps, p.burst)}
		p.seen[key] = e
	}
	e.last = time.Now()
	p.mu.Unlock()
	return e.lim.Allow()
}

func (p *limiterPool) sweep() {
	const ttl = 10 * time.Minute
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for range t.C {
		cutoff := time.Now().Add(-ttl)
		p.mu.Lock()
		for k, e := range p.seen {
			if e.last.Before(cutoff) {
				delete(p.seen, k)
			}
		}
		p.mu.Unlock()
	}
}
