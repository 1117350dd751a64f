package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/attendance/auth"
	"github.com/rollcall/attendance/roster"
)

type stubUserStore struct {
	users map[string]roster.User
	err   error
}

func (s *stubUserStore) UserByUsername(_ context.Context, username string) (*roster.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func newService(t *testing.T, users ...roster.User) *auth.Service {
	t.Helper()
	store := &stubUserStore{users: make(map[string]roster.User)}
	for _, u := range users {
		store.users[u.Username] = u
	}
	return auth.NewService(store, []byte("test-secret"), time.Hour)
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := auth.HashPassword(password)
	require.NoError(t, err)
	return h
}

func TestHashPassword_NeverPlaintext(t *testing.T) {
	h := hashed(t, "admin123")
	assert.NotEqual(t, "admin123", h)
	assert.True(t, auth.CheckPassword("admin123", h))
	assert.False(t, auth.CheckPassword("admin124", h))
}

func TestAuthenticate(t *testing.T) {
	svc := newService(t, roster.User{
		ID:           1,
		Username:     "admin",
		PasswordHash: hashed(t, "admin123"),
		Role:         roster.RoleAdmin,
	})
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "admin", "admin123")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, roster.RoleAdmin, user.Role)
	})

	t.Run("wrong password is absent, not error", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "admin", "nope")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("unknown username is absent, not error", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "ghost", "admin123")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		broken := auth.NewService(&stubUserStore{err: errors.New("io error")}, []byte("k"), time.Hour)
		_, err := broken.Authenticate(ctx, "admin", "admin123")
		assert.Error(t, err)
	})
}

func TestToken_RoundTrip(t *testing.T) {
	svc := newService(t)

	token, err := svc.IssueToken(roster.User{ID: 7, Username: "t1", Role: roster.RoleBatchTeacher})
	require.NoError(t, err)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, roster.UserID(7), claims.UserID)
	assert.Equal(t, "t1", claims.Username)
	assert.Equal(t, roster.RoleBatchTeacher, claims.Role)
	assert.NotEmpty(t, claims.ID, "token carries a unique id")
}

func TestParseToken_RejectsTampering(t *testing.T) {
	svc := newService(t)
	other := auth.NewService(&stubUserStore{}, []byte("different-secret"), time.Hour)

	token, err := svc.IssueToken(roster.User{ID: 1, Username: "a", Role: roster.RoleAdmin})
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = svc.ParseToken(token + "x")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = svc.ParseToken("not-a-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
