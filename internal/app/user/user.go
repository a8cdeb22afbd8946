/*
Package user contains the identity view of the active Session.

It defines how the current principal is represented to the UI shell (the Identity struct),
derived fresh from the stored token on every call.
*/
package user

import (
	"slices"
	"time"

	"eduportal/internal/app/authz"
	"eduportal/internal/pkg/auth/token"
)

// Identity is the current principal as reported to the UI shell.
// Fields use JSON tags for the /api/session response.
type Identity struct {

	// Authenticated is true when a token is stored, whether or not it has expired.
	Authenticated bool `json:"authenticated"`

	// Expired is true when the stored token is expired or unreadable.
	Expired bool `json:"expired"`

	// UserID is resolved from userId, sub or id.
	UserID string `json:"userId,omitempty"`

	// Username is resolved from username, sub, name, user or email.
	Username string `json:"username,omitempty"`

	// Roles are the ROLE_ entries of the token scope, in token order.
	Roles []string `json:"roles"`

	// Admin and User mirror the two well-known roles.
	Admin bool `json:"isAdmin"`
	User  bool `json:"isUser"`

	// Remember reports whether the session outlives the gateway process.
	Remember bool `json:"remember"`

	// ExpiresAt is the token expiry, when it has one.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	// Home is the landing path for these roles.
	Home string `json:"home"`
}

// Current returns the Identity of the session r reads. The store is read once, so every field
// describes the same token even while a login or logout runs concurrently.
func Current(r *authz.Resolver) Identity {
	snap := r.Snapshot()
	roles := snap.Claims.Roles()

	id := Identity{
		Authenticated: snap.Present,
		Expired:       snap.Expired,
		Roles:         roles,
		Admin:         slices.Contains(roles, token.RoleAdmin),
		User:          slices.Contains(roles, token.RoleUser),
		Remember:      snap.Session.Remember,
		Home:          authz.DefaultRouteFor(roles),
	}

	id.UserID, _ = snap.Claims.UserID()
	id.Username, _ = snap.Claims.Username()

	if exp, ok := snap.Claims.ExpiresAt(); ok {
		exp = exp.UTC()
		id.ExpiresAt = &exp
	}

	return id
}
