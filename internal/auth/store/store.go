package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this and expose sub-repositories to keep concerns tidy.
//
// Nothing the login path needs lives here; credentials are seeded in memory
// and tokens are self-contained. The store only keeps the issuance audit.
type Store interface {
	IssuedTokens() IssuedTokens

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type IssuedTokens interface {
	// RecordIssuedToken inserts one audit row. JTIs are unique.
	RecordIssuedToken(ctx context.Context, t domain.IssuedToken) error

	// GetIssuedTokenByJTI looks a token up by its jti claim.
	GetIssuedTokenByJTI(ctx context.Context, jti string) (domain.IssuedToken, error)

	// DeleteIssuedTokensExpiredBefore purges rows whose token expired before
	// cutoff and reports how many went.
	DeleteIssuedTokensExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
