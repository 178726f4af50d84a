package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per client IP to requestsPerMinute using a
// sliding window.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

// LoginRateLimit limits login attempts per client IP and endpoint. It is
// mounted on the session route only, so password guessing is throttled
// independently of normal API traffic.
func LoginRateLimit(attemptsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		attemptsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	writeAuthError(w, http.StatusTooManyRequests, "Too many requests")
}
