package middleware

import (
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	maxClients = 1000
	clientTTL  = 5 * time.Minute
)

// RateLimiter allows perMinute requests per client IP, with a burst of a tenth
// of that. Idle clients are forgotten after clientTTL.
func RateLimiter(perMinute int) echo.MiddlewareFunc {
	limiters := expirable.NewLRU[string, *rate.Limiter](maxClients, nil, clientTTL)
	limit := rate.Limit(float64(perMinute) / 60.0)
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			limiter, ok := limiters.Get(key)
			if !ok {
				limiter = rate.NewLimiter(limit, burst)
				limiters.Add(key, limiter)
			}
			if !limiter.Allow() {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
