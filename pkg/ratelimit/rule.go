package ratelimit

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Wildcard matches any method, or any path when used as a pattern.
const Wildcard = "*"

// Rule maps a {method, path pattern} scope to a threshold per window.
//
// Pattern is one of:
//   - "*" the global fallback, matches every path
//   - "/prefix/*" matches any path starting with "/prefix/"
//   - "/exact/path" matches that path only
type Rule struct {
	Method  string
	Pattern string
	Limit   int64
	Window  time.Duration
}

// Scope is the part of the rate limit key contributed by the rule.
func (r Rule) Scope() string {
	return r.Method + " " + r.Pattern
}

func (r Rule) String() string {
	return fmt.Sprintf("%s %d/%s", r.Scope(), r.Limit, r.Window)
}

// IsGlobal reports whether the rule is the "* *" fallback.
func (r Rule) IsGlobal() bool {
	return r.Method == Wildcard && r.Pattern == Wildcard
}

// Validate checks the rule is usable by the Accountant.
func (r Rule) Validate() error {
	if r.Method == "" {
		return fmt.Errorf("%w: empty method", ErrInvalidRule)
	}
	if r.Method != Wildcard && r.Method != strings.ToUpper(r.Method) {
		return fmt.Errorf("%w: method %q must be upper case", ErrInvalidRule, r.Method)
	}
	if r.Pattern != Wildcard && !strings.HasPrefix(r.Pattern, "/") {
		return fmt.Errorf("%w: pattern %q must be \"*\" or start with \"/\"", ErrInvalidRule, r.Pattern)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("%w: %s: limit must be positive", ErrInvalidRule, r.Scope())
	}
	if r.Window < time.Millisecond {
		return fmt.Errorf("%w: %s: window must be at least 1ms", ErrInvalidRule, r.Scope())
	}
	return nil
}

func (r Rule) matches(method, path string) bool {
	if r.Method != Wildcard && r.Method != method {
		return false
	}
	switch {
	case r.Pattern == Wildcard:
		return true
	case strings.HasSuffix(r.Pattern, Wildcard):
		return strings.HasPrefix(path, strings.TrimSuffix(r.Pattern, Wildcard))
	default:
		return r.Pattern == path
	}
}

// specificity orders rules: exact paths first, then longer prefixes, then
// shorter prefixes, then the global pattern. An explicit method breaks ties.
func (r Rule) specificity() (path int, method int) {
	switch {
	case r.Pattern == Wildcard:
		path = 0
	case strings.HasSuffix(r.Pattern, Wildcard):
		path = len(r.Pattern)
	default:
		path = 1 << 20
	}
	if r.Method != Wildcard {
		method = 1
	}
	return path, method
}

// Rules is a validated rule set sorted most-specific first.
type Rules []Rule

// NewRules validates rules, sorts them and checks a global fallback exists.
func NewRules(rules ...Rule) (Rules, error) {
	out := make(Rules, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	hasGlobal := false

	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[r.Scope()]; dup {
			return nil, fmt.Errorf("%w: duplicate scope %q", ErrInvalidRule, r.Scope())
		}
		seen[r.Scope()] = struct{}{}
		hasGlobal = hasGlobal || r.IsGlobal()
		out = append(out, r)
	}

	if !hasGlobal {
		return nil, ErrNoGlobalRule
	}

	slices.SortStableFunc(out, func(a, b Rule) int {
		ap, am := a.specificity()
		bp, bm := b.specificity()
		if ap != bp {
			return bp - ap
		}
		return bm - am
	})

	return out, nil
}

// Match returns the most specific rule for the request. A Rules value built
// by NewRules always matches because of the global fallback.
func (rs Rules) Match(method, path string) (Rule, bool) {
	for _, r := range rs {
		if r.matches(method, path) {
			return r, true
		}
	}
	return Rule{}, false
}

// DefaultRules guards the login endpoint tightly and everything else loosely.
func DefaultRules() Rules {
	rules, err := NewRules(
		Rule{Method: "POST", Pattern: "/api/auth/login", Limit: 5, Window: time.Minute},
		Rule{Method: "GET", Pattern: "/api/auth/dashboard", Limit: 60, Window: time.Minute},
		Rule{Method: Wildcard, Pattern: Wildcard, Limit: 1000, Window: time.Minute},
	)
	if err != nil {
		panic(err)
	}
	return rules
}

// ParseRules reads a comma separated rule list such as
//
//	POST /api/auth/login 5/1m, * /api/* 60/1m, * * 1000/1m
//
// Each entry is "<METHOD> <PATTERN> <LIMIT>/<WINDOW>" where WINDOW is a Go
// duration string.
func ParseRules(s string) (Rules, error) {
	var rules []Rule
	for entry := range strings.SplitSeq(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		r, err := parseRule(entry)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return NewRules(rules...)
}

func parseRule(entry string) (Rule, error) {
	fields := strings.Fields(entry)
	if len(fields) != 3 {
		return Rule{}, fmt.Errorf("%w: %q: want \"METHOD PATTERN LIMIT/WINDOW\"", ErrInvalidRule, entry)
	}

	limitStr, windowStr, ok := strings.Cut(fields[2], "/")
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q: missing \"/\" between limit and window", ErrInvalidRule, entry)
	}

	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %q: limit: %v", ErrInvalidRule, entry, err)
	}

	window, err := time.ParseDuration(windowStr)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %q: window: %v", ErrInvalidRule, entry, err)
	}

	return Rule{
		Method:  strings.ToUpper(fields[0]),
		Pattern: fields[1],
		Limit:   limit,
		Window:  window,
	}, nil
}
