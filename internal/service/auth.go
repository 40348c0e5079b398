package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/michal-majer/s4kit/internal/config"
	"github.com/michal-majer/s4kit/internal/keys"
	"github.com/michal-majer/s4kit/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrKeyRevoked         = errors.New("api key revoked")
	ErrKeyExpired         = errors.New("api key expired")
)

// AuthService authenticates proxy callers (API keys) and dashboard admins
// (JWT sessions).
type AuthService struct {
	store     *config.Store
	jwtSecret []byte
}

// NewAuthService creates an AuthService backed by the config store.
func NewAuthService(store *config.Store, jwtSecret string) *AuthService {
	return &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
	}
}

// HashPassword produces the stored form of an admin password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// ValidateAPIKey parses the presented key, hashes its secret, and checks the
// stored record. A malformed key returns keys.ErrMalformed so the caller can
// answer 400 instead of 401; an unknown, revoked, or expired key is a
// terminal authentication failure with no retries.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*model.APIKey, error) {
	parsed, err := keys.Parse(rawKey)
	if err != nil {
		return nil, err
	}

	key, err := s.store.GetAPIKeyByHash(ctx, keys.Hash(parsed.Secret))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if key.IsRevoked {
		return nil, ErrKeyRevoked
	}
	if key.Expired(time.Now()) {
		return nil, ErrKeyExpired
	}

	// Update last used timestamp (fire and forget)
	go s.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)

	return key, nil
}

// JWTPrincipal is an authenticated admin session.
type JWTPrincipal struct {
	AdminID int64
	Email   string
}

// ValidateJWT verifies a JWT bearer token and returns the associated admin identity.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*JWTPrincipal, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !token.Valid {
		return nil, ErrInvalidCredentials
	}

	return &JWTPrincipal{
		AdminID: claims.AdminID,
		Email:   claims.Email,
	}, nil
}

// IssueJWT creates a new signed JWT token for the given admin.
func (s *AuthService) IssueJWT(ctx context.Context, adminID int64, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		AdminID: adminID,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "s4kit",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type jwtClaims struct {
	AdminID int64  `json:"admin_id"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}
