package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// RefreshSession is a persisted refresh token. Only the token hash is stored.
type RefreshSession struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

type RefreshRepo struct {
	db *sqlx.DB
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db}
}

func (r *RefreshRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS auth_refresh_sessions (
  token_hash TEXT PRIMARY KEY,
  id BIGSERIAL,
  user_id BIGINT NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_auth_refresh_sessions_user ON auth_refresh_sessions(user_id);`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *RefreshRepo) Save(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) (int64, error) {
	const q = `INSERT INTO auth_refresh_sessions (token_hash, user_id, expires_at) VALUES ($1, $2, $3) RETURNING id`
	var id int64
	if err := r.db.QueryRowxContext(ctx, q, tokenHash, userID, expiresAt).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Consume deletes the session and returns it, so a token can be redeemed
// once. Returns sql.ErrNoRows for unknown or already used tokens.
func (r *RefreshRepo) Consume(ctx context.Context, tokenHash string) (*RefreshSession, error) {
	const q = `DELETE FROM auth_refresh_sessions WHERE token_hash = $1 RETURNING id, user_id, expires_at`
	var s RefreshSession
	if err := r.db.GetContext(ctx, &s, q, tokenHash); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RefreshRepo) DeleteForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_refresh_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *RefreshRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_refresh_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
