package ratelimit

import "errors"

var (
	// ErrRateLimited is returned by Admit when the window's threshold is spent.
	ErrRateLimited = errors.New("ratelimit: rate limited")

	// ErrStoreUnavailable wraps counter store failures and timeouts.
	ErrStoreUnavailable = errors.New("ratelimit: counter store unavailable")

	// ErrInvalidRule reports a rule that cannot be parsed or used.
	ErrInvalidRule = errors.New("ratelimit: invalid rule")

	// ErrNoGlobalRule is returned when a rule set has no "* *" fallback.
	ErrNoGlobalRule = errors.New("ratelimit: rule set needs a global \"* *\" fallback rule")

	// ErrFailModeUnset is returned when an Accountant is built without a
	// fail mode.
	ErrFailModeUnset = errors.New("ratelimit: fail mode must be set to open or closed")
)
