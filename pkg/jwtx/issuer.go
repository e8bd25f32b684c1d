package jwtx

import (
	"errors"
	"time"
)

// Token is a freshly minted access token alongside the claims it carries.
type Token struct {
	Raw    string
	Claims Claims
}

// ExpiresIn is the remaining lifetime relative to the issue time.
func (t Token) ExpiresIn() time.Duration {
	return t.Claims.ExpiresAt.Sub(t.Claims.IssuedAt.Time)
}

// Issuer mints access tokens. It holds no per-token state, so one Issuer is
// safe to share between goroutines.
type Issuer struct {
	Signer   Signer
	Issuer   string
	Audience []string
	TTL      time.Duration
}

// Issue builds claims for subject/role at now and signs them.
func (i *Issuer) Issue(subject, role string, now time.Time) (Token, error) {
	if subject == "" {
		return Token{}, errors.New("jwtx: empty subject")
	}

	ttl := i.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	claims := NewAccessClaims(subject, role, ttl, i.Issuer, i.Audience, now)
	raw, err := i.Signer.Sign(claims)
	if err != nil {
		return Token{}, err
	}

	return Token{Raw: raw, Claims: claims}, nil
}
