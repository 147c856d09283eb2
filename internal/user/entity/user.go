package entity

import "time"

// User is a row in the `users` table.
type User struct {
	ID               int64      `db:"id"`
	Email            string     `db:"email"`
	FullName         *string    `db:"full_name"`
	AvatarURL        *string    `db:"avatar_url"`
	PasswordHash     string     `db:"password_hash"`
	Status           string     `db:"status"` // active / disabled
	Version          int64      `db:"version"`
	EmailConfirmedAt *time.Time `db:"email_confirmed_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// AuthView is the projection needed for access token claims.
type AuthView struct {
	ID      int64  `db:"id"`
	Email   string `db:"email"`
	Version int64  `db:"version"`
}

// ProfilePatch carries the optional fields of a profile update.
type ProfilePatch struct {
	FullName  *string
	AvatarURL *string
}

func (p ProfilePatch) Empty() bool { return p.FullName == nil && p.AvatarURL == nil }
