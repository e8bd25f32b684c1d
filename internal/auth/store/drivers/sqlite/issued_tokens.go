package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

type issuedTokensRepo struct {
	db *sql.DB
}

const issuedTokenColumns = `id, jti, subject, role, client_ip, issued_at, expires_at`

func (r *issuedTokensRepo) RecordIssuedToken(ctx context.Context, t domain.IssuedToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO issued_tokens (`+issuedTokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.JTI, t.Subject, t.Role, t.ClientIP, t.IssuedAt.Unix(), t.ExpiresAt.Unix(),
	)
	return mapConstraint(err)
}

func (r *issuedTokensRepo) GetIssuedTokenByJTI(ctx context.Context, jti string) (domain.IssuedToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+issuedTokenColumns+` FROM issued_tokens WHERE jti = ?`, jti)

	t, err := scanIssuedToken(row)
	if err != nil {
		return domain.IssuedToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *issuedTokensRepo) DeleteIssuedTokensExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM issued_tokens WHERE expires_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssuedToken(s rowScanner) (domain.IssuedToken, error) {
	var (
		t                  domain.IssuedToken
		issuedAt, expireAt int64
	)
	if err := s.Scan(&t.ID, &t.JTI, &t.Subject, &t.Role, &t.ClientIP, &issuedAt, &expireAt); err != nil {
		return domain.IssuedToken{}, err
	}
	t.IssuedAt = time.Unix(issuedAt, 0).UTC()
	t.ExpiresAt = time.Unix(expireAt, 0).UTC()
	return t, nil
}
