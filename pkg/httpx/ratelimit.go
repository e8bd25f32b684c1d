package httpx

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// KeyExtractor pulls the client identifier used for rate limiting out of a
// request.
type KeyExtractor func(*http.Request) string

// RemoteIP returns the peer address of the connection.
func RemoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// IPKeyExtractor extracts the client IP address from the request.
//
// Forwarding headers are client controlled, so they are only honoured when
// trustProxy is set, i.e. when exactly one trusted proxy sits in front of
// the service. That proxy appends the peer it saw to X-Forwarded-For, so the
// rightmost entry is the only one a client cannot forge; anything to its
// left came from the client. Otherwise the connection's remote address is
// used.
func IPKeyExtractor(trustProxy bool) KeyExtractor {
	return func(r *http.Request) string {
		if trustProxy {
			// Multiple X-Forwarded-For lines count as one comma separated list.
			if xff := strings.Join(r.Header.Values("X-Forwarded-For"), ","); xff != "" {
				if i := strings.LastIndex(xff, ","); i >= 0 {
					xff = xff[i+1:]
				}
				if ip := strings.TrimSpace(xff); ip != "" {
					return ip
				}
			}

			// Check X-Real-IP header
			if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
				return xri
			}
		}

		return RemoteIP(r)
	}
}

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerRetryAfter = "Retry-After"
)

// RateLimitMiddleware gates every request through the accountant before
// anything else runs. now may be nil.
//
// A spent window yields 429, a store outage under the fail-closed policy
// yields 503. Both carry Retry-After in whole seconds.
func RateLimitMiddleware(acc *ratelimit.Accountant, keyExtractor KeyExtractor, now func() time.Time) Middleware {
	if now == nil {
		now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := keyExtractor(r)
			if key == "" {
				// If we can't extract a key, allow the request but log it
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			d, err := acc.AdmitRequest(ctx, key, r.Method, r.URL.Path, now())
			if d.Limit > 0 && !d.Degraded {
				w.Header().Set(headerLimit, strconv.FormatInt(d.Limit, 10))
				w.Header().Set(headerRemaining, strconv.FormatInt(d.Remaining, 10))
			}

			switch {
			case err == nil:
				next.ServeHTTP(w, r)

			case errors.Is(err, ratelimit.ErrRateLimited):
				secs := retryAfterSeconds(d.RetryAfter)
				w.Header().Set(headerRetryAfter, strconv.Itoa(secs))

				log.Warn("rate limit exceeded",
					"key", key,
					"rule", d.Rule.Scope(),
					"endpoint", r.URL.Path,
					"retry_after", secs,
				)

				WriteError(w, http.StatusTooManyRequests,
					fmt.Sprintf("Too many requests. Please try again in %d seconds.", secs))

			default:
				// Store down and policy says closed. Already logged by the
				// accountant, throttled.
				w.Header().Set(headerRetryAfter, strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
				WriteError(w, http.StatusServiceUnavailable,
					"Service temporarily unavailable. Please try again later.")
			}
		})
	}
}

// retryAfterSeconds rounds up so a client never retries inside the window.
func retryAfterSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}
