// Package ratelimit implements fixed-window request accounting against a
// shared counter store.
//
// Every instance of the service points at the same CounterStore, so the
// counters for a client are global rather than per process. The Accountant
// resolves the most specific Rule for a request, increments the counter for
// the current window in a single atomic call and rejects the request once
// the window's threshold has been used up.
//
// When the store cannot be reached the configured FailMode decides the
// outcome. There is deliberately no default: callers must pick FailOpen or
// FailClosed.
package ratelimit
