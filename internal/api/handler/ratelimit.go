package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter returns a Gin middleware that enforces per-client token-bucket
// rate limiting keyed by client IP. rps is the steady-state requests per
// second and burst the bucket size. Liveness and metrics endpoints are
// exempt so probes and scrapers are never throttled.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)

	go func() {
		tick := time.NewTicker(5 * time.Minute)
		defer tick.Stop()
		for range tick.C {
			mu.Lock()
			for ip, v := range visitors {
				if time.Since(v.seen) > 10*time.Minute {
					delete(visitors, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		switch c.FullPath() {
		case "/healthz", "/metrics":
			c.Next()
			return
		}

		ip := c.ClientIP()

		mu.Lock()
		v, ok := visitors[ip]
		if !ok {
			v = &visitor{lim: rate.NewLimiter(rate.Limit(rps), burst)}
			visitors[ip] = v
		}
		v.seen = time.Now()
		mu.Unlock()

		if !v.lim.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
