/*
Package authz answers identity and route-access questions for the active Session.

Every query decodes the token currently held by the session store; nothing is cached, and a
missing or unreadable token resolves to the "absent" value instead of an error. The decisions
made here are a UX gate. The backend API remains the enforcement point.
*/
package authz

import (
	"slices"
	"time"

	"github.com/rs/zerolog"

	"eduportal/internal/app/session"
	"eduportal/internal/pkg/auth/token"
	"eduportal/internal/pkg/logx"
)

// Resolver combines the session store, the token codec and a route table.
type Resolver struct {
	store session.Store
	codec *token.Codec
	table *Table

	logger zerolog.Logger
}

// NewResolver returns a Resolver. A nil codec uses token.Default(), a nil table uses DefaultTable().
func NewResolver(store session.Store, codec *token.Codec, table *Table) *Resolver {
	if codec == nil {
		codec = token.Default()
	}
	if table == nil {
		table = DefaultTable()
	}

	return &Resolver{
		store:  store,
		codec:  codec,
		table:  table,
		logger: logx.Component("authz"),
	}
}

// Table returns the route table the resolver gates against.
func (r *Resolver) Table() *Table {
	return r.table
}

// CurrentSession returns the active Session.
func (r *Resolver) CurrentSession() (session.Session, bool) {
	sess, ok := r.store.Get()
	if !ok || sess.Token == "" {
		return session.Session{}, false
	}
	return sess, true
}

// CurrentToken returns the raw token of the active Session.
func (r *Resolver) CurrentToken() (string, bool) {
	sess, ok := r.CurrentSession()
	return sess.Token, ok
}

func (r *Resolver) currentClaims() (token.Claims, bool) {
	raw, ok := r.CurrentToken()
	if !ok {
		return token.Claims{}, false
	}

	claims, err := token.Decode(raw)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Stored token cannot be decoded")
		return token.Claims{}, false
	}
	return claims, true
}

// Snapshot is the active Session together with what its token says, taken from one store read.
type Snapshot struct {
	// Session is the stored session. It is zero when Present is false.
	Session session.Session

	// Present is true when a token is stored.
	Present bool

	// Readable is true when the stored token decodes. Claims is empty otherwise.
	Readable bool
	Claims   token.Claims

	// Expired is true when the stored token is expired or unreadable.
	Expired bool
}

// Snapshot reads the store once and decodes the token found there. Use it when several
// answers must agree with each other, since separate queries each read the store again.
func (r *Resolver) Snapshot() Snapshot {
	sess, ok := r.CurrentSession()
	if !ok {
		return Snapshot{}
	}

	snap := Snapshot{Session: sess, Present: true}

	claims, err := token.Decode(sess.Token)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Stored token cannot be decoded")
		snap.Expired = true
		return snap
	}

	snap.Readable = true
	snap.Claims = claims
	snap.Expired = r.codec.ClaimsExpired(claims)
	return snap
}

// CurrentUserID returns the user id of the active Session.
func (r *Resolver) CurrentUserID() (string, bool) {
	claims, ok := r.currentClaims()
	if !ok {
		return "", false
	}
	return claims.UserID()
}

// CurrentUsername returns the display name of the active Session.
func (r *Resolver) CurrentUsername() (string, bool) {
	claims, ok := r.currentClaims()
	if !ok {
		return "", false
	}
	return claims.Username()
}

// CurrentRoles returns the roles of the active Session. It is empty, never nil, without one.
func (r *Resolver) CurrentRoles() []string {
	claims, ok := r.currentClaims()
	if !ok {
		return []string{}
	}
	return claims.Roles()
}

// IsAuthenticated reports whether a token is stored. It does not check expiry.
func (r *Resolver) IsAuthenticated() bool {
	_, ok := r.CurrentToken()
	return ok
}

// IsSessionExpired reports whether the stored token is expired or unreadable.
// It is false when there is no Session at all, so callers can tell "logged out" from "stale".
func (r *Resolver) IsSessionExpired() bool {
	raw, ok := r.CurrentToken()
	if !ok {
		return false
	}
	return r.codec.IsExpired(raw)
}

// SessionExpiresAt returns the expiry of the stored token, if it has one.
func (r *Resolver) SessionExpiresAt() (time.Time, bool) {
	raw, ok := r.CurrentToken()
	if !ok {
		return time.Time{}, false
	}
	return r.codec.ExpirationDate(raw)
}

// IsCurrentAdmin reports whether the active Session holds ROLE_ADMIN.
func (r *Resolver) IsCurrentAdmin() bool {
	return slices.Contains(r.CurrentRoles(), token.RoleAdmin)
}

// IsCurrentUser reports whether the active Session holds ROLE_USER.
func (r *Resolver) IsCurrentUser() bool {
	return slices.Contains(r.CurrentRoles(), token.RoleUser)
}

// CanAccess reports whether roles may reach key. See Table.CanAccess.
func (r *Resolver) CanAccess(key RouteKey, roles []string) bool {
	return r.table.CanAccess(key, roles)
}

// AccessibleRoutes returns the routes roles may reach.
func (r *Resolver) AccessibleRoutes(roles []string) []Descriptor {
	return r.table.AccessibleRoutes(roles)
}

// DefaultRouteFor returns the landing path for roles. Admin wins over user.
func (r *Resolver) DefaultRouteFor(roles []string) string {
	return DefaultRouteFor(roles)
}

// DefaultRouteFor returns the landing path for roles: the admin home, the user dashboard,
// or the login page.
func DefaultRouteFor(roles []string) string {
	switch {
	case slices.Contains(roles, token.RoleAdmin):
		return AdminHomePath
	case slices.Contains(roles, token.RoleUser):
		return DashboardPath
	default:
		return LoginPath
	}
}
