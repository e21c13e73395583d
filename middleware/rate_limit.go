package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// requestWindow tracks requests from one IP inside the current window.
type requestWindow struct {
	Count   int
	FirstAt time.Time
}

// RateLimiter caps requests per IP over a sliding window. It guards the
// scan-trigger endpoint: a triggered pass costs many minutes of paced
// provider calls, so unthrottled triggers would burn the provider quota.
type RateLimiter struct {
	mu           sync.Mutex
	windows      map[string]*requestWindow
	maxRequests  int
	windowPeriod time.Duration
}

// NewRateLimiter creates a new rate limiter
// maxRequests: maximum requests allowed within the window per IP
// windowPeriod: time window for counting requests
func NewRateLimiter(maxRequests int, windowPeriod time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows:      make(map[string]*requestWindow),
		maxRequests:  maxRequests,
		windowPeriod: windowPeriod,
	}
	go rl.startCleanup()
	return rl
}

// startCleanup periodically drops expired windows.
func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for ip, w := range rl.windows {
			if now.Sub(w.FirstAt) > rl.windowPeriod {
				delete(rl.windows, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow records a request from ip and reports whether it is within limits.
func (rl *RateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, exists := rl.windows[ip]
	if !exists || now.Sub(w.FirstAt) > rl.windowPeriod {
		rl.windows[ip] = &requestWindow{Count: 1, FirstAt: now}
		return true, 0
	}

	w.Count++
	if w.Count > rl.maxRequests {
		retryAfter := rl.windowPeriod - now.Sub(w.FirstAt)
		return false, retryAfter
	}
	return true, 0
}

// Middleware returns a gin handler rejecting over-limit requests with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := rl.allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", retryAfter.Round(time.Second).String())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}
