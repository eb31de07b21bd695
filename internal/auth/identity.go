// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

package auth

// Identity is the per-request authentication state derived by Resolve.
// It is either anonymous or bound to a live session; it lives only for the
// request that produced it and is never persisted.
type Identity struct {
	session *Session
}

// Anonymous returns the identity of an unauthenticated caller.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated returns an identity bound to the given session.
func Authenticated(session *Session) Identity {
	return Identity{session: session}
}

// IsAnonymous reports whether no valid session is bound.
func (id Identity) IsAnonymous() bool {
	return id.session == nil
}

// Session returns the bound session, or nil for an anonymous identity.
func (id Identity) Session() *Session {
	return id.session
}

// User returns the redacted user snapshot carried by the bound session.
// Returns the zero Snapshot for an anonymous identity.
func (id Identity) User() Snapshot {
	if id.session == nil {
		return Snapshot{}
	}
	return id.session.User
}
