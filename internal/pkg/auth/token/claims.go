package token

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

// Role names recognized by the gateway.
const (
	// RolePrefix marks scope entries that are roles.
	RolePrefix = "ROLE_"

	// RoleAdmin grants the administration area.
	RoleAdmin = "ROLE_ADMIN"

	// RoleUser grants the user dashboard.
	RoleUser = "ROLE_USER"
)

// Claim keys, in resolution order.
var (
	userIDKeys   = []string{"userId", "sub", "id"}
	usernameKeys = []string{"username", "sub", "name", "user", "email"}
)

const (
	expiryKey = "exp"
	scopeKey  = "scope"
)

// Bounds on exp, in Unix seconds. maxExpirySeconds is the latest second time.Unix can
// represent without overflowing its internal epoch offset.
const (
	maxExpirySeconds int64 = math.MaxInt64 - 62135596800
	minExpirySeconds int64 = math.MinInt64
)

// Claims is the decoded payload of a token.
//
// Lookups that resolve identity walk a fixed fallback chain. A step matches when the claim is
// present and is either a non-blank JSON string or a JSON number (rendered in its decimal form).
// Any other type, including false, null and empty strings, is skipped and the chain continues.
type Claims struct {
	values jwt.MapClaims
}

// Map returns a copy of the raw claim set.
func (c Claims) Map() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Len returns the number of claims.
func (c Claims) Len() int {
	return len(c.values)
}

// Get returns the raw value for key.
func (c Claims) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Text returns the claim as text when it is a non-blank string or a number.
func (c Claims) Text(key string) (string, bool) {
	switch v := c.values[key].(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v, true
		}
	case json.Number:
		return v.String(), true
	}
	return "", false
}

func (c Claims) firstText(keys []string) (string, bool) {
	for _, key := range keys {
		if v, ok := c.Text(key); ok {
			return v, true
		}
	}
	return "", false
}

// UserID resolves userId, then sub, then id.
func (c Claims) UserID() (string, bool) {
	return c.firstText(userIDKeys)
}

// Username resolves username, then sub, then name, then user, then email.
func (c Claims) Username() (string, bool) {
	return c.firstText(usernameKeys)
}

// ExpiresAt returns the exp claim as a time with second precision.
// A missing or non-numeric exp reports false, meaning the token never expires.
// Values beyond what time.Time can hold are clamped to the representable range.
func (c Claims) ExpiresAt() (time.Time, bool) {
	secs, ok := c.expirySeconds()
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

func (c Claims) expirySeconds() (int64, bool) {
	num, ok := c.values[expiryKey].(json.Number)
	if !ok {
		return 0, false
	}

	if secs, err := num.Int64(); err == nil {
		return min(secs, maxExpirySeconds), true
	}

	// Float64 saturates to ±Inf for out-of-range numbers, which clamp like any other.
	f, err := num.Float64()
	if math.IsNaN(f) || (err != nil && !math.IsInf(f, 0)) {
		return 0, false
	}

	switch f = math.Floor(f); {
	case f >= float64(maxExpirySeconds):
		return maxExpirySeconds, true
	case f <= float64(minExpirySeconds):
		return minExpirySeconds, true
	}
	return min(int64(f), maxExpirySeconds), true
}

// ExpiredAt reports whether the token is expired at the given Unix second.
// A token is expired from its exp second onward; without exp it never expires.
func (c Claims) ExpiredAt(nowUnix int64) bool {
	secs, ok := c.expirySeconds()
	if !ok {
		return false
	}
	return nowUnix >= secs
}

// Scope returns the raw scope claim, or "" when absent or not a string.
func (c Claims) Scope() string {
	scope, _ := c.values[scopeKey].(string)
	return scope
}

// Roles returns the ROLE_-prefixed entries of the space-separated scope claim, in order.
// Duplicates are kept. The result is never nil.
func (c Claims) Roles() []string {
	roles := []string{}
	for _, entry := range strings.Fields(c.Scope()) {
		if strings.HasPrefix(entry, RolePrefix) {
			roles = append(roles, entry)
		}
	}
	return roles
}

// HasRole reports whether role appears in Roles.
func (c Claims) HasRole(role string) bool {
	for _, r := range c.Roles() {
		if r == role {
			return true
		}
	}
	return false
}
