// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/doorward/doorward/internal/auth"
	"github.com/doorward/doorward/internal/auth/mocks"
	"github.com/doorward/doorward/pkg/errutil"
)

func newService(t *testing.T, users *mocks.MockUserRepository, sessions *mocks.MockSessionRepository, hasher *mocks.MockPasswordHasher) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(users, sessions, hasher, time.Hour)
	require.NoError(t, err)
	return svc
}

func authenticatedIdentity(t *testing.T) auth.Identity {
	t.Helper()
	user, err := auth.NewUser("nadia", "stored-hash")
	require.NoError(t, err)
	session, err := auth.NewSession(user.Redacted(), auth.HashSessionToken("token"), time.Now().Add(time.Hour))
	require.NoError(t, err)
	return auth.Authenticated(session)
}

func TestNewService_Validation(t *testing.T) {
	users := &mocks.MockUserRepository{}
	sessions := &mocks.MockSessionRepository{}
	hasher := &mocks.MockPasswordHasher{}

	_, err := auth.NewService(nil, sessions, hasher, time.Hour)
	assert.Error(t, err)

	_, err = auth.NewService(users, nil, hasher, time.Hour)
	assert.Error(t, err)

	_, err = auth.NewService(users, sessions, nil, time.Hour)
	assert.Error(t, err)

	// Zero TTL falls back to the default
	svc, err := auth.NewService(users, sessions, hasher, 0)
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultSessionTTL, svc.SessionTTL())
}

func TestSignup_Success(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	users.On("GetByUsername", mock.Anything, "nadia").Return(nil, auth.ErrNotFound)
	hasher.On("Hash", "hunter22").Return("hashed", nil)
	users.On("Create", mock.Anything, mock.AnythingOfType("*auth.User")).Return(nil)
	sessions.On("Create", mock.Anything, mock.AnythingOfType("*auth.Session")).Return(nil)

	session, token, err := svc.Signup(context.Background(), auth.Anonymous(), auth.Credentials{
		Username: "nadia",
		Password: "hunter22",
	})
	require.NoError(t, err)

	assert.Len(t, token, 64)
	assert.Equal(t, "nadia", session.User.Username)
	assert.Equal(t, auth.PasswordMask, session.User.Password)
	assert.Equal(t, auth.HashSessionToken(token), session.TokenHash)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)
}

func TestSignup_RequiresAnonymous(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	_, _, err := svc.Signup(context.Background(), authenticatedIdentity(t), auth.Credentials{
		Username: "other",
		Password: "hunter22",
	})
	errutil.AssertErrorCode(t, err, auth.CodeAlreadyAuthenticated)
}

func TestSignup_MalformedCredentials(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	tests := []struct {
		name  string
		creds auth.Credentials
	}{
		{"empty username", auth.Credentials{Password: "hunter22"}},
		{"empty password", auth.Credentials{Username: "nadia"}},
		{"username too short", auth.Credentials{Username: "ab", Password: "hunter22"}},
		{"username starts with digit", auth.Credentials{Username: "9lives", Password: "hunter22"}},
		{"username with spaces", auth.Credentials{Username: "na dia", Password: "hunter22"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Signup(context.Background(), auth.Anonymous(), tt.creds)
			errutil.AssertErrorCode(t, err, auth.CodeMalformedRequest)
		})
	}
}

func TestSignup_UsernameTaken(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	existing, err := auth.NewUser("nadia", "hash")
	require.NoError(t, err)
	users.On("GetByUsername", mock.Anything, "nadia").Return(existing, nil)

	_, _, err = svc.Signup(context.Background(), auth.Anonymous(), auth.Credentials{
		Username: "nadia",
		Password: "hunter22",
	})
	errutil.AssertErrorCode(t, err, auth.CodeUsernameTaken)
}

func TestSignup_RaceClosedByUniqueConstraint(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	// The advisory check sees no user, but the constraint trips at insert.
	users.On("GetByUsername", mock.Anything, "nadia").Return(nil, auth.ErrNotFound)
	hasher.On("Hash", "hunter22").Return("hashed", nil)
	users.On("Create", mock.Anything, mock.AnythingOfType("*auth.User")).Return(auth.ErrUsernameTaken)

	_, _, err := svc.Signup(context.Background(), auth.Anonymous(), auth.Credentials{
		Username: "nadia",
		Password: "hunter22",
	})
	errutil.AssertErrorCode(t, err, auth.CodeUsernameTaken)
}

func TestSignup_StoreFailure(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	users.On("GetByUsername", mock.Anything, "nadia").Return(nil, errors.New("connection reset"))

	_, _, err := svc.Signup(context.Background(), auth.Anonymous(), auth.Credentials{
		Username: "nadia",
		Password: "hunter22",
	})
	errutil.AssertErrorCode(t, err, "AUTH_SIGNUP_FAILED")
}

func TestLogin_Success(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	user, err := auth.NewUser("nadia", "stored-hash")
	require.NoError(t, err)
	users.On("GetByUsername", mock.Anything, "nadia").Return(user, nil)
	hasher.On("Verify", "hunter22", "stored-hash").Return(true, nil)
	sessions.On("Create", mock.Anything, mock.AnythingOfType("*auth.Session")).Return(nil)

	session, token, err := svc.Login(context.Background(), auth.Anonymous(), auth.Credentials{
		Username: "nadia",
		Password: "hunter22",
	})
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Equal(t, user.ID, session.User.ID)
	assert.Equal(t, auth.PasswordMask, session.User.Password)
}

func TestLogin_UnknownUserAndBadPasswordAreDistinct(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	users.On("GetByUsername", mock.Anything, "ghost").Return(nil, auth.ErrNotFound)

	_, _, err := svc.Login(context.Background(), auth.Anonymous(), auth.Credentials{
		Username: "ghost",
		Password: "whatever",
	})
	errutil.AssertErrorCode(t, err, auth.CodeUnknownUser)

	user, err := auth.NewUser("nadia", "stored-hash")
	require.NoError(t, err)
	users.On("GetByUsername", mock.Anything, "nadia").Return(user, nil)
	hasher.On("Verify", "wrong", "stored-hash").Return(false, nil)

	_, _, err = svc.Login(context.Background(), auth.Anonymous(), auth.Credentials{
		Username: "nadia",
		Password: "wrong",
	})
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
}

func TestLogin_RequiresAnonymous(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	_, _, err := svc.Login(context.Background(), authenticatedIdentity(t), auth.Credentials{
		Username: "nadia",
		Password: "hunter22",
	})
	errutil.AssertErrorCode(t, err, auth.CodeAlreadyAuthenticated)
}

func TestLogin_FreshTokenPerLogin(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	user, err := auth.NewUser("nadia", "stored-hash")
	require.NoError(t, err)
	users.On("GetByUsername", mock.Anything, "nadia").Return(user, nil)
	hasher.On("Verify", "hunter22", "stored-hash").Return(true, nil)
	sessions.On("Create", mock.Anything, mock.AnythingOfType("*auth.Session")).Return(nil)

	creds := auth.Credentials{Username: "nadia", Password: "hunter22"}
	s1, t1, err := svc.Login(context.Background(), auth.Anonymous(), creds)
	require.NoError(t, err)
	s2, t2, err := svc.Login(context.Background(), auth.Anonymous(), creds)
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestLogout(t *testing.T) {
	t.Run("destroys the session", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newService(t, users, sessions, hasher)

		id := authenticatedIdentity(t)
		sessions.On("Delete", mock.Anything, id.Session().ID).Return(nil)

		assert.NoError(t, svc.Logout(context.Background(), id))
	})

	t.Run("already-deleted session is not an error", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newService(t, users, sessions, hasher)

		id := authenticatedIdentity(t)
		sessions.On("Delete", mock.Anything, id.Session().ID).Return(auth.ErrNotFound)

		assert.NoError(t, svc.Logout(context.Background(), id))
	})

	t.Run("store failure", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newService(t, users, sessions, hasher)

		id := authenticatedIdentity(t)
		sessions.On("Delete", mock.Anything, id.Session().ID).Return(errors.New("down"))

		err := svc.Logout(context.Background(), id)
		errutil.AssertErrorCode(t, err, "AUTH_LOGOUT_FAILED")
	})

	t.Run("anonymous caller", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newService(t, users, sessions, hasher)

		err := svc.Logout(context.Background(), auth.Anonymous())
		errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
	})
}

func TestWhoAmI(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	id := authenticatedIdentity(t)
	snapshot, err := svc.WhoAmI(id)
	require.NoError(t, err)
	assert.Equal(t, "nadia", snapshot.Username)
	assert.Equal(t, auth.PasswordMask, snapshot.Password)

	_, err = svc.WhoAmI(auth.Anonymous())
	errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
}

func TestResolve(t *testing.T) {
	t.Run("empty token is anonymous", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newService(t, users, sessions, hasher)

		id, err := svc.Resolve(context.Background(), "")
		require.NoError(t, err)
		assert.True(t, id.IsAnonymous())
	})

	t.Run("unknown token is anonymous", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newService(t, users, sessions, hasher)

		sessions.On("GetByTokenHash", mock.Anything, auth.HashSessionToken("bogus")).
			Return(nil, auth.ErrNotFound)

		id, err := svc.Resolve(context.Background(), "bogus")
		require.NoError(t, err)
		assert.True(t, id.IsAnonymous())
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newService(t, users, sessions, hasher)

		sessions.On("GetByTokenHash", mock.Anything, mock.Anything).
			Return(nil, errors.New("down"))

		_, err := svc.Resolve(context.Background(), "token")
		errutil.AssertErrorCode(t, err, "SESSION_RESOLVE_FAILED")
	})

	t.Run("expired session is evicted and anonymous", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newService(t, users, sessions, hasher)

		user, err := auth.NewUser("nadia", "hash")
		require.NoError(t, err)
		expired, err := auth.NewSession(user.Redacted(), auth.HashSessionToken("old"), time.Now().Add(time.Millisecond))
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)

		sessions.On("GetByTokenHash", mock.Anything, auth.HashSessionToken("old")).Return(expired, nil)
		sessions.On("Delete", mock.Anything, expired.ID).Return(nil)

		id, err := svc.Resolve(context.Background(), "old")
		require.NoError(t, err)
		assert.True(t, id.IsAnonymous())
	})

	t.Run("valid session refreshes the expiry", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newService(t, users, sessions, hasher)

		user, err := auth.NewUser("nadia", "hash")
		require.NoError(t, err)
		originalExpiry := time.Now().Add(10 * time.Minute)
		session, err := auth.NewSession(user.Redacted(), auth.HashSessionToken("live"), originalExpiry)
		require.NoError(t, err)

		sessions.On("GetByTokenHash", mock.Anything, auth.HashSessionToken("live")).Return(session, nil)
		sessions.On("Refresh", mock.Anything, session.ID, mock.Anything, mock.Anything).Return(nil)

		id, err := svc.Resolve(context.Background(), "live")
		require.NoError(t, err)
		require.False(t, id.IsAnonymous())
		assert.True(t, id.Session().ExpiresAt.After(originalExpiry), "expiry should be extended")
		assert.Equal(t, "nadia", id.User().Username)
	})

	t.Run("refresh failure is best-effort", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		sessions := mocks.NewMockSessionRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc := newService(t, users, sessions, hasher)

		user, err := auth.NewUser("nadia", "hash")
		require.NoError(t, err)
		session, err := auth.NewSession(user.Redacted(), auth.HashSessionToken("live"), time.Now().Add(10*time.Minute))
		require.NoError(t, err)

		sessions.On("GetByTokenHash", mock.Anything, auth.HashSessionToken("live")).Return(session, nil)
		sessions.On("Refresh", mock.Anything, session.ID, mock.Anything, mock.Anything).Return(errors.New("down"))

		id, err := svc.Resolve(context.Background(), "live")
		require.NoError(t, err)
		assert.False(t, id.IsAnonymous(), "session stays valid until its current expiry")
	})
}

func TestSweepExpired(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc := newService(t, users, sessions, hasher)

	sessions.On("DeleteExpired", mock.Anything).Return(int64(3), nil).Once()
	n, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	sessions.On("DeleteExpired", mock.Anything).Return(int64(0), errors.New("down")).Once()
	_, err = svc.SweepExpired(context.Background())
	errutil.AssertErrorCode(t, err, "SESSION_SWEEP_FAILED")
}
