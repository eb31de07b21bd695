// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

// Package auth implements the Doorward authentication core.
//
// # Domain Types
//
// Domain types (User, Session, Identity) should be created using their
// respective constructors:
//   - NewUser - creates a User with a validated username and password hash
//   - NewSession - creates a Session bound to a user snapshot with an expiry
//   - Authenticated / Anonymous - build the per-request Identity value
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Service
//
// Service is the authentication state machine: Signup, Login, Logout and
// WhoAmI move a caller between Anonymous and Authenticated, and Resolve maps
// an incoming session token to an Identity. Guards (RequireAnonymous,
// RequireAuthenticated) run before each operation and abort it without
// touching any store.
package auth
