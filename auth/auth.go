/*
Package auth verifies credentials and issues session tokens.

PURPOSE:
  The thin boundary between "who is calling" and the query layer.
  Passwords are stored as bcrypt hashes - the store never sees a
  plaintext credential - and a successful login yields a signed JWT
  carrying {user id, username, role}, which is all the rest of the
  system needs for role-scoped reads.

LOOKUP SEMANTICS:
  A credential miss (unknown username OR wrong password) is an absent
  result, not an error: Authenticate returns (nil, nil) and the caller
  decides how to surface the failed login. Errors mean the store itself
  failed.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rollcall/attendance/roster"
)

// ErrInvalidToken is returned when a presented token fails signature,
// expiry or shape checks.
var ErrInvalidToken = errors.New("invalid session token")

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Claims is the session payload: the {id, username, role} triple the
// application persists for a logged-in user.
type Claims struct {
	UserID   roster.UserID `json:"user_id"`
	Username string        `json:"username"`
	Role     roster.Role   `json:"role"`
	jwt.RegisteredClaims
}

// UserStore is the slice of the query layer auth needs.
type UserStore interface {
	UserByUsername(ctx context.Context, username string) (*roster.User, error)
}

// Service authenticates users and mints/parses session tokens.
type Service struct {
	store  UserStore
	secret []byte
	ttl    time.Duration
}

// NewService creates an auth service signing tokens with secret,
// valid for ttl.
func NewService(store UserStore, secret []byte, ttl time.Duration) *Service {
	return &Service{store: store, secret: secret, ttl: ttl}
}

// Authenticate looks up the user by username and verifies the
// password against the stored hash. (nil, nil) on miss or mismatch.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*roster.User, error) {
	user, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPassword(password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}

// IssueToken mints a signed session token for the user.
func (s *Service) IssueToken(user roster.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    "attendance-engine",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and returns its claims.
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
