package ratelimit_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
	"github.com/stretchr/testify/require"
)

func TestParseRules(t *testing.T) {
	t.Run("parses and orders by specificity", func(t *testing.T) {
		rules, err := ratelimit.ParseRules("* * 1000/1m, * /api/* 60/1m, POST /api/auth/login 5/1m, GET /api/auth/* 30/30s")
		require.NoError(t, err)
		require.Len(t, rules, 4)

		require.Equal(t, "POST /api/auth/login", rules[0].Scope())
		require.Equal(t, "GET /api/auth/*", rules[1].Scope())
		require.Equal(t, "* /api/*", rules[2].Scope())
		require.Equal(t, "* *", rules[3].Scope())

		require.Equal(t, int64(30), rules[1].Limit)
		require.Equal(t, 30*time.Second, rules[1].Window)
	})

	t.Run("lower case methods are normalised", func(t *testing.T) {
		rules, err := ratelimit.ParseRules("post /login 5/1m, * * 10/1m")
		require.NoError(t, err)
		require.Equal(t, "POST", rules[0].Method)
	})

	t.Run("requires a global fallback", func(t *testing.T) {
		_, err := ratelimit.ParseRules("POST /api/auth/login 5/1m")
		require.ErrorIs(t, err, ratelimit.ErrNoGlobalRule)
	})

	t.Run("rejects malformed entries", func(t *testing.T) {
		for _, in := range []string{
			"POST /login, * * 10/1m",
			"POST /login 5, * * 10/1m",
			"POST /login x/1m, * * 10/1m",
			"POST /login 5/forever, * * 10/1m",
			"POST /login 0/1m, * * 10/1m",
			"POST login 5/1m, * * 10/1m",
			"POST /login 5/1m, POST /login 6/1m, * * 10/1m",
		} {
			_, err := ratelimit.ParseRules(in)
			require.ErrorIs(t, err, ratelimit.ErrInvalidRule, "input %q", in)
		}
	})
}

func TestRulesMatch(t *testing.T) {
	rules, err := ratelimit.ParseRules("POST /api/auth/login 5/1m, * /api/auth/login 7/1m, * /api/* 60/1m, GET /api/* 50/1m, * * 1000/1m")
	require.NoError(t, err)

	cases := []struct {
		method, path, want string
	}{
		{"POST", "/api/auth/login", "POST /api/auth/login"},
		{"GET", "/api/auth/login", "* /api/auth/login"},
		{"GET", "/api/auth/dashboard", "GET /api/*"},
		{"DELETE", "/api/auth/dashboard", "* /api/*"},
		{"GET", "/livez", "* *"},
		{"POST", "/api/auth/login/extra", "* /api/*"},
	}

	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			r, ok := rules.Match(tc.method, tc.path)
			require.True(t, ok)
			require.Equal(t, tc.want, r.Scope())
		})
	}
}

func TestDefaultRules(t *testing.T) {
	rules := ratelimit.DefaultRules()

	login, ok := rules.Match("POST", "/api/auth/login")
	require.True(t, ok)
	require.Equal(t, int64(5), login.Limit)
	require.Equal(t, time.Minute, login.Window)

	other, ok := rules.Match("GET", "/swagger/index.html")
	require.True(t, ok)
	require.True(t, other.IsGlobal())
}

func TestParseFailMode(t *testing.T) {
	m, err := ratelimit.ParseFailMode("open")
	require.NoError(t, err)
	require.Equal(t, ratelimit.FailOpen, m)

	m, err = ratelimit.ParseFailMode(" CLOSED ")
	require.NoError(t, err)
	require.Equal(t, ratelimit.FailClosed, m)

	_, err = ratelimit.ParseFailMode("")
	require.ErrorIs(t, err, ratelimit.ErrFailModeUnset)
}
