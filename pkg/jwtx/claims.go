package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL matches the one hour lifetime the dashboard has
// always handed out.
const DefaultAccessTokenTTL = time.Hour

// Claims are the access-token claims. Registered claims carry sub, iss, aud,
// iat, nbf, exp and jti; Role and Username ride alongside as private claims.
type Claims struct {
	jwt.RegisteredClaims

	// Role of the authenticated user, e.g. "User" or "Admin".
	Role string `json:"role,omitempty"`

	// Username for the authenticated user. Same as sub today, kept separate
	// so sub can move to an opaque id later without breaking consumers.
	Username string `json:"username,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for subject at now.
func NewAccessClaims(
	subject, role string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Role:     role,
		Username: subject,
	}
}

// NewJTI returns a fresh identifier for the "jti" claim. Every call yields a
// new value so two tokens minted in the same second never collide.
func NewJTI() string {
	return uuid.NewString()
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiry reports ErrExpired once now reaches exp. A token is valid
// strictly before exp; at exp it is already expired.
func (c *Claims) ValidateExpiry(now time.Time) error {
	return c.ValidateExpiryWithLeeway(now, 0)
}

// ValidateExpiryWithLeeway pushes the exp boundary out by leeway to absorb
// clock skew between instances. Only exp is affected.
func (c *Claims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}

	if !now.Before(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	return nil
}
