package user

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-health-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-health-go/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDisabled       = errors.New("user disabled")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrEmailTaken     = userrepo.ErrDuplicateEmail
)

// ValidationError lists the failed field rules.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

const (
	minPasswordLen = 8
	maxPasswordLen = 128
	maxNameLen     = 100
	maxAvatarLen   = 500
)

var (
	reUpper   = regexp.MustCompile(`[A-Z]`)
	reLower   = regexp.MustCompile(`[a-z]`)
	reDigit   = regexp.MustCompile(`\d`)
	reSpecial = regexp.MustCompile("[!@#$%^&*(),.?\":{}|<>_\\-+=\\[\\]\\\\;'/`~]")
)

// ValidatePassword enforces length and character class rules.
func ValidatePassword(pw string) error {
	n := utf8.RuneCountInString(pw)
	switch {
	case n < minPasswordLen:
		return &ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	case n > maxPasswordLen:
		return &ValidationError{Field: "password", Reason: "must be at most 128 characters"}
	case !reUpper.MatchString(pw):
		return &ValidationError{Field: "password", Reason: "must contain at least one uppercase letter"}
	case !reLower.MatchString(pw):
		return &ValidationError{Field: "password", Reason: "must contain at least one lowercase letter"}
	case !reDigit.MatchString(pw):
		return &ValidationError{Field: "password", Reason: "must contain at least one digit"}
	case !reSpecial.MatchString(pw):
		return &ValidationError{Field: "password", Reason: "must contain at least one special character"}
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return "", &ValidationError{Field: "email", Reason: "invalid email address"}
	}
	return e, nil
}

// UserService orchestrates authentication and profile flows.
type UserService struct {
	repo   *userrepo.UserRepo
	hasher PasswordHasher
}

func NewUserService(db *sqlx.DB, r *userrepo.UserRepo, hasher PasswordHasher) *UserService {
	if r == nil {
		r = userrepo.NewUserRepo(db)
	}
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{repo: r, hasher: hasher}
}

// Signup creates an active user. The email is normalized to lower case.
func (s *UserService) Signup(ctx context.Context, email, password, fullName string) (*entity.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	fullName = strings.TrimSpace(fullName)
	if utf8.RuneCountInString(fullName) > maxNameLen {
		return nil, &ValidationError{Field: "full_name", Reason: "must be at most 100 characters"}
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		ID:           utilities.NewSnowflakeInt64(),
		Email:        email,
		PasswordHash: hash,
		Status:       "active",
		Version:      1,
	}
	if fullName != "" {
		u.FullName = &fullName
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// AuthenticatePassword checks email and password. Unknown emails and wrong
// passwords both return ErrBadCredentials.
func (s *UserService) AuthenticatePassword(ctx context.Context, email, password string) (*entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		} // avoid user enumeration
		return nil, err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if u.Status != "active" {
		return nil, ErrDisabled
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// GetAuthView retrieves the claim projection for an active user.
func (s *UserService) GetAuthView(ctx context.Context, id int64) (*entity.AuthView, error) {
	v, err := s.repo.GetAuthView(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return v, err
}

func (s *UserService) UpdateProfile(ctx context.Context, id int64, p entity.ProfilePatch) (*entity.User, error) {
	if p.FullName != nil {
		name := strings.TrimSpace(*p.FullName)
		if utf8.RuneCountInString(name) > maxNameLen {
			return nil, &ValidationError{Field: "full_name", Reason: "must be at most 100 characters"}
		}
		p.FullName = &name
	}
	if p.AvatarURL != nil && utf8.RuneCountInString(*p.AvatarURL) > maxAvatarLen {
		return nil, &ValidationError{Field: "avatar_url", Reason: "must be at most 500 characters"}
	}
	if p.Empty() {
		return s.Get(ctx, id)
	}
	u, err := s.repo.UpdateProfile(ctx, id, p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// RevokeAccess bumps the user's version so outstanding access tokens stop verifying.
func (s *UserService) RevokeAccess(ctx context.Context, id int64) error {
	err := s.repo.BumpVersion(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}
