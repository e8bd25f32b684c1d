package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// FailMode decides what happens to a request when the counter store cannot
// be reached. The zero value is invalid on purpose.
type FailMode int

const (
	failModeUnset FailMode = iota

	// FailOpen admits every request while the store is down.
	FailOpen

	// FailClosed rejects every request while the store is down.
	FailClosed
)

func (m FailMode) String() string {
	switch m {
	case FailOpen:
		return "open"
	case FailClosed:
		return "closed"
	default:
		return "unset"
	}
}

// ParseFailMode accepts "open" or "closed".
func ParseFailMode(s string) (FailMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return failModeUnset, fmt.Errorf("%w: got %q", ErrFailModeUnset, s)
	}
}

// DefaultStoreTimeout bounds a single counter store call.
const DefaultStoreTimeout = 250 * time.Millisecond

// Key identifies one client within one rule scope.
type Key string

// NewKey builds the key for clientIP under rule.
func NewKey(clientIP string, rule Rule) Key {
	return Key(clientIP + "|" + rule.Scope())
}

// Decision is the outcome of Admit.
type Decision struct {
	Allowed    bool
	Rule       Rule
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
	ResetAt    time.Time

	// Degraded is set when the store was unreachable and the fail mode
	// produced the decision.
	Degraded bool
}

// Config wires an Accountant.
type Config struct {
	Store        CounterStore
	Rules        Rules
	FailMode     FailMode
	StoreTimeout time.Duration
	KeyPrefix    string
	Logger       *slog.Logger
}

// Accountant admits or rejects requests by counting them per key and window.
type Accountant struct {
	store    CounterStore
	rules    Rules
	failMode FailMode
	timeout  time.Duration
	prefix   string
	log      *slog.Logger

	outages   atomic.Int64
	outageLog rate.Sometimes
}

// New validates cfg and returns an Accountant.
func New(cfg Config) (*Accountant, error) {
	if cfg.Store == nil {
		return nil, errors.New("ratelimit: nil counter store")
	}
	if cfg.FailMode != FailOpen && cfg.FailMode != FailClosed {
		return nil, ErrFailModeUnset
	}
	// Rebuild so hand assembled rule sets get validated, sorted and checked
	// for the global fallback like parsed ones.
	rules, err := NewRules(cfg.Rules...)
	if err != nil {
		return nil, err
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Accountant{
		store:     cfg.Store,
		rules:     rules,
		failMode:  cfg.FailMode,
		timeout:   cfg.StoreTimeout,
		prefix:    cfg.KeyPrefix,
		log:       cfg.Logger,
		outageLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}, nil
}

// FailMode reports the configured fail mode.
func (a *Accountant) FailMode() FailMode { return a.failMode }

// Outages counts store calls that failed or timed out since start.
func (a *Accountant) Outages() int64 { return a.outages.Load() }

// Ping checks the counter store within the store timeout.
func (a *Accountant) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.store.Ping(ctx)
}

// AdmitRequest resolves the rule for method and path then calls Admit.
func (a *Accountant) AdmitRequest(ctx context.Context, clientIP, method, path string, now time.Time) (Decision, error) {
	rule, _ := a.rules.Match(method, path) // always matches, New enforces the fallback
	return a.Admit(ctx, NewKey(clientIP, rule), rule, now)
}

// Admit counts one request for key in the window containing now.
//
// The returned error is nil when the request may proceed, ErrRateLimited
// when the window threshold is spent and ErrStoreUnavailable when the store
// is down and the fail mode is FailClosed. Under FailOpen an outage admits
// the request with Decision.Degraded set. A rule that fails Rule.Validate is
// refused with ErrInvalidRule before the store is touched.
func (a *Accountant) Admit(ctx context.Context, key Key, rule Rule, now time.Time) (Decision, error) {
	if err := rule.Validate(); err != nil {
		return Decision{Rule: rule}, err
	}

	index := now.UnixNano() / int64(rule.Window)
	windowEnd := time.Unix(0, (index+1)*int64(rule.Window))

	d := Decision{
		Rule:    rule,
		Limit:   rule.Limit,
		ResetAt: windowEnd,
	}

	// The increment must land even if the client hangs up mid request.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	storeKey := fmt.Sprintf("%s:%s:%d", a.prefix, key, index)
	count, _, err := a.store.IncrementAndGet(storeCtx, storeKey, rule.Window)
	if err != nil {
		return a.degrade(d, key, windowEnd.Sub(now), err)
	}

	d.Remaining = max(rule.Limit-count, 0)

	// count is post-increment, so count > limit means the pre-increment
	// count had already reached the threshold.
	if count > rule.Limit {
		d.RetryAfter = windowEnd.Sub(now)
		return d, ErrRateLimited
	}

	d.Allowed = true
	return d, nil
}

func (a *Accountant) degrade(d Decision, key Key, untilReset time.Duration, cause error) (Decision, error) {
	a.outages.Add(1)
	a.outageLog.Do(func() {
		a.log.Error("rate limit counter store unavailable",
			"fail_mode", a.failMode.String(),
			"key", string(key),
			"outages", a.outages.Load(),
			"err", cause,
		)
	})

	d.Degraded = true
	if a.failMode == FailOpen {
		d.Allowed = true
		d.Remaining = d.Limit
		return d, nil
	}

	d.RetryAfter = untilReset
	if errors.Is(cause, ErrStoreUnavailable) {
		return d, cause
	}
	return d, fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)
}
