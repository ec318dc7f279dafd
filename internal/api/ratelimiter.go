package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimiter gates synthesis requests; implementations must be safe for
// concurrent use by the router middleware.
type rateLimiter interface {
	Allow() bool
}

// tokenBucket adapts x/time's limiter to the rateLimiter interface.
type tokenBucket struct {
	limiter *rate.Limiter
}

// newTokenBucketLimiter builds the default limiter for the API. Non-positive
// parameters are clamped to 1 so a misconfigured service still answers.
func newTokenBucketLimiter(ratePerSecond float64, burst int) rateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	return &tokenBucket{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (t *tokenBucket) Allow() bool {
	if t == nil || t.limiter == nil {
		return true
	}
	return t.limiter.Allow()
}

// rateLimitMiddleware rejects requests over the configured budget with 429
// before they reach the synthesis handlers.
func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry shortly")
	})
}
