package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// IPRateLimit returns an HTTP middleware that limits requests per IP
// address to the specified number per minute. It protects the management
// and session endpoints; per-key proxy quotas are enforced separately in
// the proxy pipeline.
func IPRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
