package web

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrBusy means the merchant already has a request in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrThrottled means the merchant exceeded the request rate.
	ErrThrottled = errors.New("too many requests")
)

// sweepInterval is how often idle limiters are dropped.
const sweepInterval = time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// merchantGate allows at most one in-flight model request per merchant and
// throttles each merchant with a token bucket. A limiter idle long enough to
// have refilled its bucket is equivalent to a fresh one and is evicted.
type merchantGate struct {
	mu        sync.Mutex
	busy      map[string]bool
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	refill    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func newMerchantGate(perMinute, burst int) *merchantGate {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst < 1 {
		burst = 1
	}
	var refill time.Duration
	if limit != rate.Inf {
		refill = time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	}
	return &merchantGate{
		busy:     make(map[string]bool),
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		refill:   refill,
		now:      time.Now,
	}
}

// acquire marks merchant busy. The returned release must be called exactly
// once when the request finishes.
func (g *merchantGate) acquire(merchant string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busy[merchant] {
		return nil, ErrBusy
	}

	now := g.now()
	if now.Sub(g.lastSweep) >= sweepInterval {
		g.sweep(now)
	}

	entry, ok := g.limiters[merchant]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.limiters[merchant] = entry
	}
	entry.lastSeen = now
	if !entry.limiter.AllowN(now, 1) {
		return nil, ErrThrottled
	}

	g.busy[merchant] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.busy, merchant)
			g.mu.Unlock()
		})
	}, nil
}

// sweep drops limiters that are idle past a full refill. Callers hold g.mu.
func (g *merchantGate) sweep(now time.Time) {
	for merchant, entry := range g.limiters {
		if !g.busy[merchant] && now.Sub(entry.lastSeen) >= g.refill {
			delete(g.limiters, merchant)
		}
	}
	g.lastSweep = now
}
