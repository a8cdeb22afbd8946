package token

import (
	"time"

	"eduportal/internal/pkg/logx"
)

// decodeQuietly decodes raw for a derived query, logging failures at debug level.
func decodeQuietly(raw string, query string) (Claims, bool) {
	claims, err := Decode(raw)
	if err != nil {
		logx.Debug("Token decode failed in derived query", "query", query, "error", err.Error())
		return Claims{}, false
	}
	return claims, true
}

// IsExpired reports whether raw is expired. An undecodable token counts as expired,
// so a broken session resolves to "logged out".
func (c *Codec) IsExpired(raw string) bool {
	claims, ok := decodeQuietly(raw, "is_expired")
	if !ok {
		return true
	}
	return claims.ExpiredAt(c.nowUnix())
}

// ClaimsExpired reports whether already decoded claims are expired at the codec's current second.
func (c *Codec) ClaimsExpired(claims Claims) bool {
	return claims.ExpiredAt(c.nowUnix())
}

// ExpirationDate returns the exp of raw. It reports false when raw has no exp or cannot be decoded.
func (c *Codec) ExpirationDate(raw string) (time.Time, bool) {
	claims, ok := decodeQuietly(raw, "expiration_date")
	if !ok {
		return time.Time{}, false
	}
	return claims.ExpiresAt()
}

// RolesOf returns the roles granted by raw's scope claim; empty when absent or undecodable.
func (c *Codec) RolesOf(raw string) []string {
	claims, ok := decodeQuietly(raw, "roles_of")
	if !ok {
		return []string{}
	}
	return claims.Roles()
}

// HasRole reports whether raw grants role.
func (c *Codec) HasRole(raw string, role string) bool {
	for _, r := range c.RolesOf(raw) {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether raw grants ROLE_ADMIN.
func (c *Codec) IsAdmin(raw string) bool {
	return c.HasRole(raw, RoleAdmin)
}

// IsUser reports whether raw grants ROLE_USER.
func (c *Codec) IsUser(raw string) bool {
	return c.HasRole(raw, RoleUser)
}

// IsExpired is Default().IsExpired.
func IsExpired(raw string) bool { return std.IsExpired(raw) }

// ExpirationDate is Default().ExpirationDate.
func ExpirationDate(raw string) (time.Time, bool) { return std.ExpirationDate(raw) }

// RolesOf is Default().RolesOf.
func RolesOf(raw string) []string { return std.RolesOf(raw) }

// HasRole is Default().HasRole.
func HasRole(raw string, role string) bool { return std.HasRole(raw, role) }

// IsAdmin is Default().IsAdmin.
func IsAdmin(raw string) bool { return std.IsAdmin(raw) }

// IsUser is Default().IsUser.
func IsUser(raw string) bool { return std.IsUser(raw) }
