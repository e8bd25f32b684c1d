package auth_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/app"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for auth service end-to-end tests.
 * Redis runs in a container; service instances run in-process against it so
 * several of them can share one set of rate limit counters.
 */

const (
	redisImage = "redis:7-alpine"

	signingSecret = "e2e-signing-secret-e2e-signing-secret"
	testUsername  = "user1"
	testPassword  = "password123"
)

// setupRedisContainer starts a Redis container and returns its URL together
// with the container so tests can stop it to simulate an outage.
func setupRedisContainer(t *testing.T) (string, testcontainers.Container) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, mappedPort.Port()), container
}

// startInstance runs one service instance backed by the given Redis and
// returns its base URL. Every instance gets its own audit database.
func startInstance(t *testing.T, redisURL, failMode string) string {
	t.Helper()

	cfg := app.Config{
		SigningSecret:        signingSecret,
		Issuer:               "gatekeeper",
		Audience:             []string{"gatekeeper-dashboard"},
		TokenTTL:             time.Hour,
		Users:                testUsername + ":" + testPassword + ":User",
		DatabaseFile:         filepath.Join(t.TempDir(), "auth.db"),
		RateLimitStore:       app.CounterStoreRedis,
		RedisURL:             redisURL,
		FailMode:             failMode,
		StoreTimeout:         500 * time.Millisecond,
		KeyPrefix:            "e2e",
		Env:                  "test",
		LogLevel:             "error",
		LogFormat:            "json",
		Port:                 8080,
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	}

	application, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	return srv.URL
}

// assertCategory classifies err and checks its category.
func assertCategory(t *testing.T, err error, want authsdk.Category) *authsdk.APIError {
	t.Helper()
	require.Error(t, err)

	apiErr := authsdk.Classify(err)
	require.NotNil(t, apiErr)
	require.Equal(t, want, apiErr.Category, "unexpected classification of %v", err)
	return apiErr
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
