// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// PasswordMask replaces the password hash whenever a user record leaves the
// core. The real hash must never reach a response serializer.
const PasswordMask = "*"

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// User represents a registered account. Username is the unique key and is
// immutable after creation; comparisons are case-sensitive exact match.
type User struct {
	ID           ulid.ULID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// NewUser creates a validated User instance.
func NewUser(username, passwordHash string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}, nil
}

// Snapshot is a point-in-time, redacted copy of a User. It is what sessions
// carry and what responses serialize; Password is always the mask sentinel.
type Snapshot struct {
	ID        ulid.ULID `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"createdAt"`
}

// Redacted returns the user's snapshot with the password hash replaced by
// PasswordMask. The snapshot does not track later changes to the record.
func (u *User) Redacted() Snapshot {
	return Snapshot{
		ID:        u.ID,
		Username:  u.Username,
		Password:  PasswordMask,
		CreatedAt: u.CreatedAt,
	}
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_MALFORMED_REQUEST").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_MALFORMED_REQUEST").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_MALFORMED_REQUEST").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_MALFORMED_REQUEST").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// Credentials is the request body shape shared by signup and login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks that both fields are present and non-empty. It is the
// ValidateCredentialsShape guard: it runs before any store is touched.
func (c Credentials) Validate() error {
	if c.Username == "" || c.Password == "" {
		return oops.Code("AUTH_MALFORMED_REQUEST").
			Errorf("username and password are required")
	}
	return nil
}

// UserRepository manages user persistence. Implementations must enforce
// username uniqueness at the storage layer; the service's existence check
// before Create is advisory only and does not close the race.
type UserRepository interface {
	// Create stores a new user. Returns ErrUsernameTaken (possibly wrapped)
	// if the username is already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by exact, case-sensitive username.
	// Returns ErrNotFound if no such user exists.
	GetByUsername(ctx context.Context, username string) (*User, error)
}
