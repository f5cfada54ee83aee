package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter *rate.Limiter
	last    time.Time
}

// Visitors keeps one token bucket per client key in a bounded LRU.
// Keys idle for longer than ttl are evicted by Run.
type Visitors struct {
	mu       sync.Mutex
	visitors *lru.Cache[string, *visitor]
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

func NewVisitors(limit rate.Limit, burst, cacheSize int, ttl time.Duration) *Visitors {
	cache, err := lru.New[string, *visitor](cacheSize)
	if err != nil {
		// only a non-positive size fails
		cache, _ = lru.New[string, *visitor](1)
	}
	return &Visitors{
		visitors: cache,
		limit:    limit,
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed and consumes a token when it does.
func (v *Visitors) Allow(key string) bool {
	now := v.now()

	v.mu.Lock()
	vis, ok := v.visitors.Get(key)
	if !ok {
		vis = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.visitors.Add(key, vis)
	}
	vis.last = now
	allowed := vis.limiter.AllowN(now, 1)
	v.mu.Unlock()

	return allowed
}

// Evict drops every key idle for longer than ttl and returns how many went.
func (v *Visitors) Evict() int {
	now := v.now()
	v.mu.Lock()
	defer v.mu.Unlock()

	n := 0
	for _, key := range v.visitors.Keys() {
		if vis, ok := v.visitors.Peek(key); ok && now.Sub(vis.last) > v.ttl {
			v.visitors.Remove(key)
			n++
		}
	}
	return n
}

func (v *Visitors) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visitors.Len()
}

// Run evicts idle keys every ttl until ctx is done.
func (v *Visitors) Run(ctx context.Context) {
	ticker := time.NewTicker(v.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Evict()
		}
	}
}
