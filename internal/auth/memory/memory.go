// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

// Package memory provides in-process auth repositories for tests and dev
// runs. Expiry semantics are identical to the durable stores: a session past
// its expiry is reported as absent and evicted on read.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/doorward/doorward/internal/auth"
)

// UserRepository implements auth.UserRepository with a mutex-guarded map.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]auth.User // keyed by username, exact match
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]auth.User)}
}

// Create stores a new user, enforcing username uniqueness under the lock.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return auth.ErrUsernameTaken
	}
	r.users[user.Username] = *user
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.ID.Compare(id) == 0 {
			user := u
			return &user, nil
		}
	}
	return nil, auth.ErrNotFound
}

// GetByUsername retrieves a user by exact, case-sensitive username.
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, exists := r.users[username]
	if !exists {
		return nil, auth.ErrNotFound
	}
	user := u
	return &user, nil
}

// SessionRepository implements auth.SessionRepository with a mutex-guarded map.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]auth.Session // keyed by token hash
}

// NewSessionRepository creates an empty in-memory session repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]auth.Session)}
}

// Create stores a new session.
func (r *SessionRepository) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.TokenHash] = *session
	return nil
}

// GetByTokenHash retrieves a session by its token hash. Expired sessions are
// evicted and reported as absent.
func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[tokenHash]
	if !exists {
		return nil, auth.ErrNotFound
	}
	if s.IsExpired() {
		delete(r.sessions, tokenHash)
		return nil, auth.ErrNotFound
	}
	session := s
	return &session, nil
}

// Refresh extends a session's expiry and updates its last-seen time.
func (r *SessionRepository) Refresh(_ context.Context, id ulid.ULID, expiresAt, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, s := range r.sessions {
		if s.ID.Compare(id) == 0 {
			s.ExpiresAt = expiresAt
			s.LastSeenAt = lastSeen
			r.sessions[hash] = s
			return nil
		}
	}
	return auth.ErrNotFound
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, s := range r.sessions {
		if s.ID.Compare(id) == 0 {
			delete(r.sessions, hash)
			return nil
		}
	}
	return auth.ErrNotFound
}

// DeleteExpired removes all expired sessions and returns the count.
func (r *SessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	now := time.Now()
	for hash, s := range r.sessions {
		if s.IsExpiredAt(now) {
			delete(r.sessions, hash)
			deleted++
		}
	}
	return deleted, nil
}

// Compile-time interface checks.
var (
	_ auth.UserRepository    = (*UserRepository)(nil)
	_ auth.SessionRepository = (*SessionRepository)(nil)
)
