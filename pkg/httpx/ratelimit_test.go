package httpx_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type downStore struct{}

func (downStore) IncrementAndGet(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("dial tcp: connection refused")
}
func (downStore) Ping(context.Context) error { return errors.New("down") }

func newLimitedHandler(t *testing.T, store ratelimit.CounterStore, mode ratelimit.FailMode, now func() time.Time) http.Handler {
	t.Helper()

	rules, err := ratelimit.ParseRules("POST /api/auth/login 3/1m, * * 100/1m")
	require.NoError(t, err)

	acc, err := ratelimit.New(ratelimit.Config{
		Store:    store,
		Rules:    rules,
		FailMode: mode,
		Logger:   slogx.Discard(),
	})
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return httpx.RateLimitMiddleware(acc, httpx.IPKeyExtractor(false), now)(handler)
}

func doLogin(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"

		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(false)(req))
	})

	t.Run("ignores forwarding headers when proxy is not trusted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1")
		req.Header.Set("X-Real-IP", "203.0.113.2")

		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(false)(req))
	})

	t.Run("prefers X-Forwarded-For behind a trusted proxy", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1")

		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(true)(req))
	})

	t.Run("takes the hop appended by the proxy, not client supplied entries", func(t *testing.T) {
		extract := httpx.IPKeyExtractor(true)

		for _, forged := range []string{"10.0.0.1", "10.0.0.2, 10.0.0.3", "garbage"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			req.Header.Set("X-Forwarded-For", forged+", 203.0.113.1")

			require.Equal(t, "203.0.113.1", extract(req), "forged prefix %q", forged)
		}
	})

	t.Run("joins repeated X-Forwarded-For headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Add("X-Forwarded-For", "10.0.0.1")
		req.Header.Add("X-Forwarded-For", "203.0.113.1")

		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(true)(req))
	})

	t.Run("empty last entry falls through to X-Real-IP", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "10.0.0.1, ")
		req.Header.Set("X-Real-IP", "203.0.113.2")

		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(true)(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Real-IP", "203.0.113.2")

		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(true)(req))
	})

	t.Run("falls back to raw RemoteAddr without a port", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "unix-socket"

		require.Equal(t, "unix-socket", httpx.IPKeyExtractor(true)(req))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 0).Truncate(time.Minute).Add(20 * time.Second)
	clock := func() time.Time { return fixed }

	t.Run("allows requests under limit and reports remaining", func(t *testing.T) {
		h := newLimitedHandler(t, ratelimit.NewMemoryStore(nil), ratelimit.FailClosed, clock)

		for i := range 3 {
			rec := doLogin(h, "192.168.1.1:12345")
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
			require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
			require.Equal(t, fmt.Sprint(2-i), rec.Header().Get("X-RateLimit-Remaining"))
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		h := newLimitedHandler(t, ratelimit.NewMemoryStore(nil), ratelimit.FailClosed, clock)

		for range 3 {
			require.Equal(t, http.StatusOK, doLogin(h, "192.168.1.1:12345").Code)
		}

		rec := doLogin(h, "192.168.1.1:12345")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "40", rec.Header().Get("Retry-After"))
		require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

		var body httpx.ErrorBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, "Too many requests. Please try again in 40 seconds.", body.Message)
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		h := newLimitedHandler(t, ratelimit.NewMemoryStore(nil), ratelimit.FailClosed, clock)

		for range 3 {
			require.Equal(t, http.StatusOK, doLogin(h, "192.168.1.1:12345").Code)
		}
		require.Equal(t, http.StatusTooManyRequests, doLogin(h, "192.168.1.1:12345").Code)
		require.Equal(t, http.StatusOK, doLogin(h, "192.168.1.2:12345").Code)
	})

	t.Run("fail open admits while the store is down", func(t *testing.T) {
		h := newLimitedHandler(t, downStore{}, ratelimit.FailOpen, clock)

		for range 10 {
			rec := doLogin(h, "192.168.1.1:12345")
			require.Equal(t, http.StatusOK, rec.Code)
			require.Empty(t, rec.Header().Get("X-RateLimit-Remaining"))
		}
	})

	t.Run("fail closed rejects while the store is down", func(t *testing.T) {
		h := newLimitedHandler(t, downStore{}, ratelimit.FailClosed, clock)

		rec := doLogin(h, "192.168.1.1:12345")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Contains(t, rec.Body.String(), "temporarily unavailable")
	})

	t.Run("allows request when key extractor returns empty", func(t *testing.T) {
		acc, err := ratelimit.New(ratelimit.Config{
			Store:    ratelimit.NewMemoryStore(nil),
			Rules:    ratelimit.DefaultRules(),
			FailMode: ratelimit.FailClosed,
			Logger:   slogx.Discard(),
		})
		require.NoError(t, err)

		empty := func(*http.Request) string { return "" }
		h := httpx.RateLimitMiddleware(acc, empty, clock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		for range 10 {
			require.Equal(t, http.StatusOK, doLogin(h, "").Code)
		}
	})
}

// Benchmark rate limiting overhead
func BenchmarkRateLimitMiddleware(b *testing.B) {
	acc, err := ratelimit.New(ratelimit.Config{
		Store:    ratelimit.NewMemoryStore(nil),
		Rules:    ratelimit.DefaultRules(),
		FailMode: ratelimit.FailOpen,
		Logger:   slogx.Discard(),
	})
	require.NoError(b, err)

	h := httpx.RateLimitMiddleware(acc, httpx.IPKeyExtractor(false), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; b.Loop(); i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = fmt.Sprintf("192.168.%d.%d:12345", i%255, (i/255)%255)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
