package service

import "github.com/aussiebroadwan/gatekeeper/internal/auth/credentials"

var (
	// ErrInputInvalid means the login request was missing a field.
	ErrInputInvalid = credentials.ErrInputInvalid

	// ErrAuthenticationFailed means the credentials did not match. It never
	// says which half was wrong.
	ErrAuthenticationFailed = credentials.ErrAuthenticationFailed
)
