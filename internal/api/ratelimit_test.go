package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestBucketPool_perClientBuckets(t *testing.T) {
	pool := newBucketPool(rate.Limit(1), 1)

	if !pool.allow("10.0.0.1") {
		t.Fatal("first request should pass")
	}
	if pool.allow("10.0.0.1") {
		t.Error("burst of 1 exhausted, second request should be throttled")
	}
	if !pool.allow("10.0.0.2") {
		t.Error("a different client has its own bucket")
	}
}

func TestBucketPool_prune(t *testing.T) {
	pool := newBucketPool(rate.Limit(1), 1)
	pool.allow("10.0.0.1")

	pool.mu.Lock()
	pool.buckets["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	pool.mu.Unlock()

	pool.pruneOnce(limiterStaleAfter)

	pool.mu.Lock()
	remaining := len(pool.buckets)
	pool.mu.Unlock()
	if remaining != 0 {
		t.Errorf("stale bucket should be pruned, %d remain", remaining)
	}
}

func TestRateLimiter_middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimiter(1, 1))
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	get := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := get("10.0.0.1:5000"); code != http.StatusOK {
		t.Fatalf("first request: got %d, want 200", code)
	}
	if code := get("10.0.0.1:5000"); code != http.StatusTooManyRequests {
		t.Errorf("second request over burst: got %d, want 429", code)
	}
	if code := get("10.0.0.2:5000"); code != http.StatusOK {
		t.Errorf("different client: got %d, want 200", code)
	}
}
