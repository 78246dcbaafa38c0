package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterPruneEvery = 5 * time.Minute
	limiterStaleAfter = 10 * time.Minute
)

// bucket is one caller's token bucket.
type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// bucketPool hands out one token bucket per client IP and prunes buckets
// that have gone quiet.
type bucketPool struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
}

func newBucketPool(rps rate.Limit, burst int) *bucketPool {
	return &bucketPool{
		buckets: make(map[string]*bucket),
		rps:     rps,
		burst:   burst,
	}
}

// allow takes one token from the client's bucket, creating it on first sight.
func (p *bucketPool) allow(clientIP string) bool {
	p.mu.Lock()
	b, ok := p.buckets[clientIP]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(p.rps, p.burst)}
		p.buckets[clientIP] = b
	}
	b.lastSeen = time.Now()
	p.mu.Unlock()

	return b.tokens.Allow()
}

// prune drops stale buckets once per interval.
func (p *bucketPool) prune(interval, staleAfter time.Duration) {
	for {
		time.Sleep(interval)
		p.pruneOnce(staleAfter)
	}
}

// pruneOnce drops buckets idle for longer than staleAfter.
func (p *bucketPool) pruneOnce(staleAfter time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ip, b := range p.buckets {
		if time.Since(b.lastSeen) > staleAfter {
			delete(p.buckets, ip)
		}
	}
}

// RateLimiter returns a Gin middleware that throttles ledger requests per
// client IP. rps is the sustained request rate, burst the spike allowance.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	pool := newBucketPool(rate.Limit(rps), burst)
	go pool.prune(limiterPruneEvery, limiterStaleAfter)

	return func(c *gin.Context) {
		if !pool.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
