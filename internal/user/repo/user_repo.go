package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/user/entity"
)

// ErrDuplicateEmail is returned by Create when the email is taken.
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  email CITEXT NOT NULL UNIQUE,
  full_name TEXT,
  avatar_url TEXT,
  password_hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  version BIGINT NOT NULL DEFAULT 1,
  email_confirmed_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const userColumns = `id, email, full_name, avatar_url, password_hash, status, version, email_confirmed_at, created_at, updated_at`

// Create inserts u (ID already assigned) and fills the timestamps.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, email, full_name, password_hash, status, version)
		VALUES (:id, :email, :full_name, :password_hash, :status, :version) RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return errors.New("no row returned")
	}
	return rows.Scan(&u.CreatedAt, &u.UpdatedAt)
}

// GetByEmail returns a user matched by email (case-insensitive due to citext) or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email=$1`, email); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetAuthView returns only the fields needed for token claims.
func (r *UserRepo) GetAuthView(ctx context.Context, id int64) (*entity.AuthView, error) {
	var v entity.AuthView
	if err := r.db.GetContext(ctx, &v, `SELECT id, email, version FROM users WHERE id=$1 AND status='active'`, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdateProfile applies the set fields of p and returns the updated row.
func (r *UserRepo) UpdateProfile(ctx context.Context, id int64, p entity.ProfilePatch) (*entity.User, error) {
	const q = `UPDATE users SET
		full_name = COALESCE($2, full_name),
		avatar_url = COALESCE($3, avatar_url),
		updated_at = NOW()
	WHERE id=$1 RETURNING ` + userColumns
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, id, p.FullName, p.AvatarURL); err != nil {
		return nil, err
	}
	return &u, nil
}

// BumpVersion increments version so access tokens carrying the old one are rejected.
func (r *UserRepo) BumpVersion(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET version = version + 1, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
