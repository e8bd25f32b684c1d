// Package credentials holds the seeded username/secret pairs the login
// endpoint checks against.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
)

// DefaultRole is given to seeded users that do not name one.
const DefaultRole = "User"

// DefaultSeed matches the two demo accounts the dashboard ships with.
const DefaultSeed = "user1:password123:User,admin:adminpass:Admin"

var (
	// ErrInputInvalid is returned when the username or password is empty.
	ErrInputInvalid = errors.New("credentials: username and password are required")

	// ErrAuthenticationFailed covers both unknown users and wrong secrets.
	ErrAuthenticationFailed = errors.New("credentials: authentication failed")
)

// Verifier checks a username/password pair.
type Verifier interface {
	Verify(ctx context.Context, username, password string) (domain.Identity, error)
}

type entry struct {
	hash     string // PHC encoded argon2id
	identity domain.Identity
}

// Store is an immutable in-memory credential set, safe for concurrent use.
// Plaintext secrets are hashed on load and never kept.
type Store struct {
	entries map[string]entry
	dummy   string
}

// NewStore builds a Store from creds with cryptox.DefaultParams. Usernames
// must be unique.
func NewStore(creds ...domain.Credential) (*Store, error) {
	return NewStoreWithParams(cryptox.DefaultParams, creds...)
}

// NewStoreWithParams is NewStore with explicit hashing cost.
func NewStoreWithParams(params cryptox.Params, creds ...domain.Credential) (*Store, error) {
	dummy, err := cryptox.HashPasswordWith("credentials-dummy-secret", params)
	if err != nil {
		return nil, err
	}

	s := &Store{
		entries: make(map[string]entry, len(creds)),
		dummy:   dummy,
	}

	for _, c := range creds {
		if c.Username == "" || c.Secret == "" {
			return nil, fmt.Errorf("credentials: empty username or secret for %q", c.Username)
		}
		if _, dup := s.entries[c.Username]; dup {
			return nil, fmt.Errorf("credentials: duplicate username %q", c.Username)
		}
		if c.Role == "" {
			c.Role = DefaultRole
		}
		hash, err := cryptox.HashPasswordWith(c.Secret, params)
		if err != nil {
			return nil, fmt.Errorf("credentials: hash secret for %q: %w", c.Username, err)
		}
		s.entries[c.Username] = entry{hash: hash, identity: c.Identity()}
	}

	return s, nil
}

// Len reports how many credentials are loaded.
func (s *Store) Len() int { return len(s.entries) }

// Verify returns the identity for a matching pair.
//
// Unknown usernames are checked against a dummy hash so they cost the same
// as a wrong password.
func (s *Store) Verify(_ context.Context, username, password string) (domain.Identity, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return domain.Identity{}, ErrInputInvalid
	}

	e, known := s.entries[username]
	hash := s.dummy
	if known {
		hash = e.hash
	}

	if err := cryptox.VerifyPassword(password, hash); err != nil || !known {
		return domain.Identity{}, ErrAuthenticationFailed
	}

	return e.identity, nil
}

// ParseSeed reads "user:secret[:role],..." into credentials. The username
// ends at the first colon; with two or more colons the role starts after the
// last one, so secrets may themselves contain colons.
func ParseSeed(seed string) ([]domain.Credential, error) {
	var out []domain.Credential
	for item := range strings.SplitSeq(seed, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		user, rest, ok := strings.Cut(item, ":")
		if !ok || user == "" || rest == "" {
			return nil, fmt.Errorf("credentials: seed entry %q: want user:secret[:role]", item)
		}

		secret, role := rest, DefaultRole
		if i := strings.LastIndex(rest, ":"); i >= 0 {
			secret, role = rest[:i], rest[i+1:]
		}
		if secret == "" || role == "" {
			return nil, fmt.Errorf("credentials: seed entry for %q has an empty secret or role", user)
		}

		out = append(out, domain.Credential{Username: user, Secret: secret, Role: role})
	}

	if len(out) == 0 {
		return nil, errors.New("credentials: seed is empty")
	}
	return out, nil
}

// ValidateSeed reports the errors NewStore would return for seed without
// paying for hashing any secret.
func ValidateSeed(seed string) error {
	creds, err := ParseSeed(seed)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(creds))
	for _, c := range creds {
		if _, dup := seen[c.Username]; dup {
			return fmt.Errorf("credentials: duplicate username %q", c.Username)
		}
		seen[c.Username] = struct{}{}
	}
	return nil
}
