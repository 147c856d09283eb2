package user

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/user/entity"
)

var userCols = []string{"id", "email", "full_name", "avatar_url", "password_hash", "status", "version", "email_confirmed_at", "created_at", "updated_at"}

func newMockService(t *testing.T) (*UserService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewUserService(sqlx.NewDb(db, "postgres"), nil, BcryptHasher{Cost: bcrypt.MinCost}), mock
}

func TestValidatePassword(t *testing.T) {
	cases := map[string]bool{
		"Secret#123":              true,
		"short#1A":                true,
		"Sh#1a":                   false,
		"alllower#123":            false,
		"ALLUPPER#123":            false,
		"NoDigits#here":           false,
		"NoSpecial123":            false,
		"Ünïcode~Pass1":           true,
		string(make([]byte, 129)): false,
	}
	for pw, ok := range cases {
		err := ValidatePassword(pw)
		if ok {
			assert.NoError(t, err, pw)
		} else {
			assert.Error(t, err, pw)
		}
	}
}

func TestSignupCreatesUser(t *testing.T) {
	svc, mock := newMockService(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(sqlmock.AnyArg(), "ada@example.com", "Ada Lovelace", sqlmock.AnyArg(), "active", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u, err := svc.Signup(context.Background(), "  Ada@Example.com ", "Secret#123", "Ada Lovelace")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.True(t, BcryptHasher{}.Verify(u.PasswordHash, "Secret#123"))
	assert.Equal(t, now, u.CreatedAt)
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := svc.Signup(context.Background(), "ada@example.com", "Secret#123", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignupValidatesBeforeStoring(t *testing.T) {
	svc, _ := newMockService(t)

	_, err := svc.Signup(context.Background(), "not-an-email", "Secret#123", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)

	_, err = svc.Signup(context.Background(), "ada@example.com", "weak", "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)
}

func TestAuthenticatePassword(t *testing.T) {
	svc, mock := newMockService(t)
	hash, err := BcryptHasher{Cost: bcrypt.MinCost}.Hash("Secret#123")
	require.NoError(t, err)
	now := time.Now()
	row := func() *sqlmock.Rows {
		return sqlmock.NewRows(userCols).AddRow(int64(7), "ada@example.com", nil, nil, hash, "active", int64(1), nil, now, now)
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=$1")).WithArgs("ada@example.com").WillReturnRows(row())
	u, err := svc.AuthenticatePassword(context.Background(), "ADA@example.com", "Secret#123")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=$1")).WithArgs("ada@example.com").WillReturnRows(row())
	_, err = svc.AuthenticatePassword(context.Background(), "ada@example.com", "Wrong#123")
	assert.ErrorIs(t, err, ErrBadCredentials)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=$1")).WithArgs("bob@example.com").WillReturnError(sql.ErrNoRows)
	_, err = svc.AuthenticatePassword(context.Background(), "bob@example.com", "Secret#123")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestUpdateProfile(t *testing.T) {
	svc, mock := newMockService(t)
	now := time.Now()
	name := "Augusta Ada King"
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET")).
		WithArgs(int64(7), name, nil).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(int64(7), "ada@example.com", name, nil, "h", "active", int64(1), nil, now, now))

	padded := "  " + name + " "
	u, err := svc.UpdateProfile(context.Background(), 7, entity.ProfilePatch{FullName: &padded})
	require.NoError(t, err)
	require.NotNil(t, u.FullName)
	assert.Equal(t, name, *u.FullName)
}

func TestUpdateProfileRejectsLongAvatar(t *testing.T) {
	svc, _ := newMockService(t)
	long := string(make([]byte, 501))
	_, err := svc.UpdateProfile(context.Background(), 7, entity.ProfilePatch{AvatarURL: &long})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRevokeAccessUnknownUser(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET version = version + 1")).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, svc.RevokeAccess(context.Background(), 9), ErrUserNotFound)
}
