// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Service provides the authentication state machine. A caller moves
// Anonymous -> Authenticated at signup/login, and back to Anonymous at
// logout or expiry. Every operation either returns a success value or an
// oops error with one of the codes in errors.go.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	hasher   PasswordHasher
	ttl      time.Duration
	logger   *slog.Logger
}

// NewService creates a new Service. A zero ttl selects DefaultSessionTTL.
func NewService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, ttl time.Duration) (*Service, error) {
	return NewServiceWithLogger(users, sessions, hasher, ttl, slog.Default())
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(users UserRepository, sessions SessionRepository, hasher PasswordHasher, ttl time.Duration, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		ttl:      ttl,
		logger:   logger,
	}, nil
}

// SessionTTL returns the configured session lifetime. The transport layer
// uses it for the cookie max-age.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// Signup registers a new user and establishes a session for it.
// Guards: the caller must be anonymous and present well-formed credentials.
// Returns the session and the plaintext token to hand to the client.
func (s *Service) Signup(ctx context.Context, id Identity, creds Credentials) (*Session, string, error) {
	if err := Check(id, RequireAnonymous); err != nil {
		return nil, "", err
	}
	if err := creds.Validate(); err != nil {
		return nil, "", err
	}
	if err := ValidateUsername(creds.Username); err != nil {
		return nil, "", err
	}

	// Advisory existence check. The storage unique constraint is what
	// actually closes the race between concurrent identical signups.
	_, err := s.users.GetByUsername(ctx, creds.Username)
	switch {
	case err == nil:
		return nil, "", oops.Code(CodeUsernameTaken).
			With("username", creds.Username).
			Errorf("username already registered")
	case !errors.Is(err, ErrNotFound):
		return nil, "", oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "get user by username").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return nil, "", oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(creds.Username, hash)
	if err != nil {
		return nil, "", err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, "", oops.Code(CodeUsernameTaken).
				With("username", creds.Username).
				Wrap(err)
		}
		return nil, "", oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	session, token, err := s.mintSession(ctx, user.Redacted())
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "user signed up", "username", user.Username)
	return session, token, nil
}

// Login verifies credentials and establishes a session.
// Guards: the caller must be anonymous and present well-formed credentials.
// An unknown username and a wrong password fail with distinct codes.
func (s *Service) Login(ctx context.Context, id Identity, creds Credentials) (*Session, string, error) {
	if err := Check(id, RequireAnonymous); err != nil {
		return nil, "", err
	}
	if err := creds.Validate(); err != nil {
		return nil, "", err
	}

	user, err := s.users.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", oops.Code(CodeUnknownUser).
				With("username", creds.Username).
				Errorf("no such user")
		}
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by username").
			Wrap(err)
	}

	valid, err := s.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !valid {
		return nil, "", oops.Code(CodeInvalidCredentials).
			With("username", creds.Username).
			Errorf("invalid password")
	}

	// A fresh token is minted on every login; session identifiers are never
	// reused across logins.
	session, token, err := s.mintSession(ctx, user.Redacted())
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "user logged in", "username", user.Username)
	return session, token, nil
}

// Logout destroys the caller's session.
// Guards: the caller must be authenticated. Destroying a session that is
// already gone is not an error.
func (s *Service) Logout(ctx context.Context, id Identity) error {
	if err := Check(id, RequireAuthenticated); err != nil {
		return err
	}

	session := id.Session()
	if err := s.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user logged out", "username", session.User.Username)
	return nil
}

// WhoAmI returns the redacted snapshot bound to the caller's session.
// Guards: the caller must be authenticated. Read-only, no state transition.
func (s *Service) WhoAmI(id Identity) (Snapshot, error) {
	if err := Check(id, RequireAuthenticated); err != nil {
		return Snapshot{}, err
	}
	return id.User(), nil
}

// Resolve maps an incoming session token to a request identity. An empty,
// unknown or expired token binds Anonymous; a valid token binds
// Authenticated and extends the session's expiry by the configured TTL so
// the transport layer can re-issue the cookie.
func (s *Service) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Anonymous(), nil
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Anonymous(), nil
		}
		return Anonymous(), oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpired() {
		// Lazy eviction; the lookup path already treats it as absent.
		if err := s.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to evict expired session",
				"session_id", session.ID.String(), "error", err)
		}
		return Anonymous(), nil
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)
	if err := s.sessions.Refresh(ctx, session.ID, expiresAt, now); err != nil {
		// Best effort: the session is still valid until its current expiry.
		s.logger.WarnContext(ctx, "failed to refresh session",
			"session_id", session.ID.String(), "error", err)
	} else {
		session.ExpiresAt = expiresAt
		session.LastSeenAt = now
	}

	return Authenticated(session), nil
}

// SweepExpired removes expired sessions from the store.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "swept expired sessions", "deleted", n)
	}
	return n, nil
}

// mintSession creates and persists a session for the given snapshot.
func (s *Service) mintSession(ctx context.Context, user Snapshot) (*Session, string, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(user, tokenHash, time.Now().Add(s.ttl))
	if err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	return session, token, nil
}
