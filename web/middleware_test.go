package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestGetLimiter(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(10), 20)

	limiter1 := rl.getLimiter("192.168.1.1")
	if limiter1 == nil {
		t.Fatal("getLimiter returned nil")
	}

	// Same IP gets the same limiter back
	limiter2 := rl.getLimiter("192.168.1.1")
	if limiter1 != limiter2 {
		t.Error("getLimiter should return the same limiter for the same IP")
	}

	limiter3 := rl.getLimiter("192.168.1.2")
	if limiter1 == limiter3 {
		t.Error("getLimiter should return different limiters for different IPs")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(rate.Limit(1), 5)
	router := gin.New()
	router.Use(RateLimitMiddleware(rl))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// The burst passes
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d should succeed in burst, got status %d", i+1, w.Code)
		}
	}

	// The 6th request is limited
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Request after burst should be rate limited, got status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Rate limit exceeded") {
		t.Errorf("Expected rate limit error message, got: %s", w.Body.String())
	}
}

func TestRateLimitMiddlewareSharedLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Two middleware instances over one limiter share the per-IP budget
	rl := NewRateLimiter(rate.Limit(1), 2)
	router := gin.New()
	router.GET("/a", RateLimitMiddleware(rl), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/b", RateLimitMiddleware(rl), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/a", "/b"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		req.RemoteAddr = "192.168.1.9:12345"
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request to %s should succeed in burst, got status %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/a", nil)
	req.RemoteAddr = "192.168.1.9:12345"
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Third request should exhaust the shared budget, got status %d", w.Code)
	}
}

func TestRateLimitMiddlewareDifferentIPs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(rate.Limit(1), 1)
	router := gin.New()
	router.Use(RateLimitMiddleware(rl))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Exhaust the first IP's budget
	w1 := httptest.NewRecorder()
	req1, _ := http.NewRequest("GET", "/test", nil)
	req1.RemoteAddr = "192.168.1.1:12345"
	router.ServeHTTP(w1, req1)

	// An unrelated IP is unaffected
	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest("GET", "/test", nil)
	req2.RemoteAddr = "192.168.1.2:12345"
	router.ServeHTTP(w2, req2)

	if w2.Code != http.StatusOK {
		t.Errorf("Second IP should succeed, got status %d", w2.Code)
	}
}

func TestMaxBytesMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(MaxBytesMiddleware(100))
	router.POST("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Under the limit
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/test", strings.NewReader(strings.Repeat("x", 50)))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Small body should pass, got status %d", w.Code)
	}

	// Over the limit by content length
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/test", strings.NewReader(strings.Repeat("x", 200)))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Request body too large") {
		t.Errorf("Expected error message about body size, got: %s", w.Body.String())
	}
}
