package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/credentials"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// LoginService checks credentials and mints an access token.
type LoginService struct {
	Credentials credentials.Verifier
	Issuer      *jwtx.Issuer

	// Store receives an audit row per issued token. Optional.
	Store store.Store

	// Now defaults to time.Now.
	Now func() time.Time
}

// Login returns a signed token for a matching username/password pair.
//
// Errors are ErrInputInvalid, ErrAuthenticationFailed or an internal
// failure. The audit write is best effort: if it fails the token is still
// returned and the failure is logged.
func (s *LoginService) Login(ctx context.Context, username, password, clientIP string) (domain.LoginResult, error) {
	log := slogx.FromContext(ctx)

	identity, err := s.Credentials.Verify(ctx, username, password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInputInvalid):
			return domain.LoginResult{}, ErrInputInvalid
		case errors.Is(err, ErrAuthenticationFailed):
			log.Info("login failed", "username", username)
			return domain.LoginResult{}, ErrAuthenticationFailed
		default:
			return domain.LoginResult{}, fmt.Errorf("verify credentials: %w", err)
		}
	}

	now := s.now()
	tok, err := s.Issuer.Issue(identity.Username, identity.Role, now)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	result := domain.LoginResult{
		Identity:  identity,
		Token:     tok.Raw,
		JTI:       tok.Claims.ID,
		ExpiresAt: tok.Claims.ExpiresAt.Time,
	}

	if s.Store != nil {
		audit := domain.IssuedToken{
			ID:        idx.NewAt(now).String(),
			JTI:       result.JTI,
			Subject:   identity.Username,
			Role:      identity.Role,
			ClientIP:  clientIP,
			IssuedAt:  tok.Claims.IssuedAt.Time,
			ExpiresAt: result.ExpiresAt,
		}
		if err := s.Store.IssuedTokens().RecordIssuedToken(ctx, audit); err != nil {
			log.Warn("failed to record issued token", "jti", audit.JTI, "err", err)
		}
	}

	log.Info("login succeeded", "username", identity.Username, "jti", result.JTI)
	return result, nil
}

func (s *LoginService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
