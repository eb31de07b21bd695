// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

package auth

import "github.com/samber/oops"

// Guard is a precondition checked against the request identity before an
// operation runs. A non-nil error aborts the operation without side effects.
type Guard func(Identity) error

// RequireAnonymous fails when the caller is already authenticated.
func RequireAnonymous(id Identity) error {
	if !id.IsAnonymous() {
		return oops.Code(CodeAlreadyAuthenticated).
			With("username", id.User().Username).
			Errorf("already authenticated")
	}
	return nil
}

// RequireAuthenticated fails when the caller has no valid session.
func RequireAuthenticated(id Identity) error {
	if id.IsAnonymous() {
		return oops.Code(CodeUnauthenticated).Errorf("authentication required")
	}
	return nil
}

// Check evaluates guards in order and returns the first failure.
func Check(id Identity, guards ...Guard) error {
	for _, guard := range guards {
		if err := guard(id); err != nil {
			return err
		}
	}
	return nil
}
