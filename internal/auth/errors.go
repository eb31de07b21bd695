// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUsernameTaken is returned when creating a user whose username is
// already registered. Repositories wrap storage-level unique violations
// with this sentinel so the service can map them to a conflict.
var ErrUsernameTaken = errors.New("username already taken")

// Error codes attached to oops errors by this package. The transport layer
// maps them to HTTP statuses; everything else becomes a 500.
const (
	// CodeMalformedRequest: missing or invalid credential fields.
	CodeMalformedRequest = "AUTH_MALFORMED_REQUEST"
	// CodeUsernameTaken: signup with an already-registered username.
	CodeUsernameTaken = "AUTH_USERNAME_TAKEN"
	// CodeUnknownUser: login with a username that does not exist.
	CodeUnknownUser = "AUTH_UNKNOWN_USER"
	// CodeInvalidCredentials: login with a wrong password.
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	// CodeUnauthenticated: guarded operation attempted without a valid session.
	CodeUnauthenticated = "AUTH_UNAUTHENTICATED"
	// CodeAlreadyAuthenticated: anonymous-only operation attempted while logged in.
	CodeAlreadyAuthenticated = "AUTH_ALREADY_AUTHENTICATED"
)
