package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-health-go/internal/user/entity"
)

var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrInvalidRefresh = errors.New("invalid or expired refresh token")
)

// TokenService signs access tokens and manages refresh sessions.
type TokenService struct {
	key         *rsa.PrivateKey
	kid         string
	cfg         Config
	refreshRepo *repo.RefreshRepo
	now         func() time.Time
}

func NewTokenService(db *sqlx.DB, cfg Config) (*TokenService, error) {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	// kid is base64 of the SHA256 of the public key
	pubBytes, _ := json.Marshal(k.PublicKey)
	h := sha256.Sum256(pubBytes)
	return &TokenService{
		key:         k,
		kid:         base64.RawURLEncoding.EncodeToString(h[:8]),
		cfg:         cfg,
		refreshRepo: repo.NewRefreshRepo(db),
		now:         time.Now,
	}, nil
}

func (s *TokenService) Config() Config { return s.cfg }

// JWKS returns a minimal JWKS containing the public key.
func (s *TokenService) JWKS() map[string]any {
	pub := s.key.PublicKey
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": s.kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
	return map[string]any{"keys": []any{jwk}}
}

// IssueAccess signs an access token for v.
func (s *TokenService) IssueAccess(v *entity.AuthView) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.cfg.AccessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   strconv.FormatInt(v.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:   v.Email,
		Version: v.Version,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccess checks signature, issuer and expiry. The version claim is left
// to the caller.
func (s *TokenService) VerifyAccess(token string) (*AccessClaims, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &claims, nil
}

// IssueRefresh creates an opaque refresh token and persists its hash.
func (s *TokenService) IssueRefresh(ctx context.Context, userID int64) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if _, err := s.refreshRepo.Save(ctx, hashToken(token), userID, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return "", fmt.Errorf("save refresh session: %w", err)
	}
	return token, nil
}

// RedeemRefresh consumes token and returns its user. A token is redeemable
// once; of two concurrent redemptions only one succeeds.
func (s *TokenService) RedeemRefresh(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrInvalidRefresh
	}
	sess, err := s.refreshRepo.Consume(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInvalidRefresh
		}
		return 0, err
	}
	if sess.ExpiresAt.Before(s.now()) {
		return 0, ErrInvalidRefresh
	}
	return sess.UserID, nil
}

// RevokeUser drops every refresh session of the user.
func (s *TokenService) RevokeUser(ctx context.Context, userID int64) error {
	_, err := s.refreshRepo.DeleteForUser(ctx, userID)
	return err
}

func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.refreshRepo.PurgeExpired(ctx, s.now())
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
