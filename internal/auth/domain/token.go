package domain

import "time"

// LoginResult is what a successful login hands back to the client.
type LoginResult struct {
	Identity  Identity
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// IssuedToken is the audit record of a minted access token. The token itself
// is never stored, only enough to answer "who got a token, when, from where".
type IssuedToken struct {
	ID        string // ULID
	JTI       string
	Subject   string
	Role      string
	ClientIP  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
