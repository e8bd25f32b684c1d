package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestLoginLimitSharedAcrossInstances verifies that the login budget is kept
// in Redis, so spreading attempts over two instances does not widen it.
func TestLoginLimitSharedAcrossInstances(t *testing.T) {
	redisURL, _ := setupRedisContainer(t)
	a := authsdk.NewSDKClient(startInstance(t, redisURL, "closed"))
	b := authsdk.NewSDKClient(startInstance(t, redisURL, "closed"))
	ctx := context.Background()

	// Default login rule is 5 per minute per client IP.
	for i := range 5 {
		client := a
		if i%2 == 1 {
			client = b
		}
		_, err := client.Login(ctx, testUsername, "wrong-password")
		assertCategory(t, err, authsdk.CategoryInvalidCredentials)
	}

	for _, client := range []*authsdk.SDKClient{a, b} {
		_, err := client.Login(ctx, testUsername, testPassword)
		apiErr := assertCategory(t, err, authsdk.CategoryTooManyRequests)
		require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		require.Positive(t, apiErr.RetryAfter)
		require.LessOrEqual(t, apiErr.RetryAfter, time.Minute)
	}
}

// TestCounterStoreOutage stops Redis under two instances configured with
// opposite fail modes.
func TestCounterStoreOutage(t *testing.T) {
	redisURL, container := setupRedisContainer(t)
	closed := authsdk.NewSDKClient(startInstance(t, redisURL, "closed"))
	open := authsdk.NewSDKClient(startInstance(t, redisURL, "open"))
	ctx := context.Background()

	health, err := closed.GetReadiness(ctx)
	assertHealthy(t, health, err)

	timeout := 5 * time.Second
	require.NoError(t, container.Stop(ctx, &timeout))

	t.Run("fail closed rejects", func(t *testing.T) {
		_, err := closed.Login(ctx, testUsername, testPassword)
		apiErr := assertCategory(t, err, authsdk.CategoryServerError)
		require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

		health, err := closed.GetReadiness(ctx)
		var statusErr *authsdk.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		require.NotNil(t, health)
		require.NotNil(t, health.Checks)
		require.Equal(t, "ok", health.Checks.Database)
		require.NotEqual(t, "ok", health.Checks.CounterStore)

		// Liveness is not rate limited and keeps answering.
		live, err := closed.GetLiveness(ctx)
		assertHealthy(t, live, err)
	})

	t.Run("fail open admits", func(t *testing.T) {
		resp, err := open.Login(ctx, testUsername, testPassword)
		require.NoError(t, err)
		require.NotEmpty(t, resp.Token)

		health, err := open.GetReadiness(ctx)
		require.NoError(t, err)
		require.Equal(t, "degraded", health.Status)
	})
}

// TestSessionAcrossInstances logs in on one instance and reads the dashboard
// from another; both share the signing secret.
func TestSessionAcrossInstances(t *testing.T) {
	redisURL, _ := setupRedisContainer(t)
	a := authsdk.NewSDKClient(startInstance(t, redisURL, "closed"))
	b := authsdk.NewSDKClient(startInstance(t, redisURL, "closed"))
	ctx := context.Background()

	session, err := authsdk.NewSession(a, authsdk.NewMemoryTokenStore(""))
	require.NoError(t, err)
	require.Equal(t, authsdk.StateAnonymous, session.State())

	err = session.Login(ctx, testUsername, "wrong-password")
	apiErr := assertCategory(t, err, authsdk.CategoryInvalidCredentials)
	require.Equal(t, authsdk.MessageInvalidCredentials, apiErr.Message)
	require.False(t, session.IsAuthenticated())

	require.NoError(t, session.Login(ctx, testUsername, testPassword))
	require.True(t, session.IsAuthenticated())

	dash, err := b.Dashboard(ctx, session.Token())
	require.NoError(t, err)
	require.Len(t, dash.Labels, len(dash.Values))
	require.NotEmpty(t, dash.Labels)

	dash, err = session.Dashboard(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, dash.Values)

	require.NoError(t, session.Logout())
	_, err = session.Dashboard(ctx)
	require.True(t, errors.Is(err, authsdk.ErrNoToken))
}
