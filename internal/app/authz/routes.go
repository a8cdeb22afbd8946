package authz

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"eduportal/internal/pkg/auth/token"
)

// RouteKey names an entry of the route table.
type RouteKey string

const (
	// RouteAuthLogin is the public sign-in page.
	RouteAuthLogin RouteKey = "AUTH_LOGIN"

	// RouteAuthRegister is the public sign-up page.
	RouteAuthRegister RouteKey = "AUTH_REGISTER"

	// RouteHome is the public landing page.
	RouteHome RouteKey = "HOME"

	// RouteUnauthorized is the public page shown when access was refused.
	RouteUnauthorized RouteKey = "UNAUTHORIZED"

	// RouteDashboard is the signed-in user's dashboard.
	RouteDashboard RouteKey = "DASHBOARD"

	// RouteRoom is a conferencing room, addressed by id.
	RouteRoom RouteKey = "ROOM"

	// RouteQuizList lists the quizzes visible to the user.
	RouteQuizList RouteKey = "QUIZ_LIST"

	// RouteQuizEditor is the quiz authoring page.
	RouteQuizEditor RouteKey = "QUIZ_EDITOR"

	// RouteAdminDashboard is the administration home.
	RouteAdminDashboard RouteKey = "ADMIN_DASHBOARD"

	// RouteAdminUsers is the administration user list.
	RouteAdminUsers RouteKey = "ADMIN_USERS"
)

// Landing paths used by DefaultRouteFor and the navigation guard.
const (
	// LoginPath is where principals without a session are sent.
	LoginPath = "/auth/login"

	// DashboardPath is the home of principals holding ROLE_USER.
	DashboardPath = "/dashboard"

	// AdminHomePath is the home of principals holding ROLE_ADMIN.
	AdminHomePath = "/admin"
)

// ReturnURLParam is the query parameter carrying the original target on a login redirect.
const ReturnURLParam = "returnUrl"

// Access is the access level of a route.
type Access string

const (
	// AccessPublic routes are reachable by anyone, with or without a session.
	AccessPublic Access = "public"

	// AccessProtected routes require a session and, when listed, one of the required roles.
	AccessProtected Access = "protected"

	// AccessAdmin routes are protected routes of the administration area.
	AccessAdmin Access = "admin"
)

// Descriptor is one entry of the route table.
type Descriptor struct {
	Key           RouteKey `json:"key"`
	Path          string   `json:"path"`
	Access        Access   `json:"access"`
	RequiredRoles []string `json:"requiredRoles,omitempty"`
	FallbackPath  string   `json:"fallbackPath,omitempty"`
}

// Public reports whether the route is reachable without a session.
func (d Descriptor) Public() bool {
	return d.Access == AccessPublic
}

// Table is an immutable route table. Lookups never mutate it.
type Table struct {
	routes []Descriptor
	byKey  map[RouteKey]int
}

// NewTable builds a table from descriptors. Keys must be unique, paths must be absolute,
// and access levels must be one of the known values.
func NewTable(descriptors ...Descriptor) (*Table, error) {
	t := &Table{
		routes: make([]Descriptor, 0, len(descriptors)),
		byKey:  make(map[RouteKey]int, len(descriptors)),
	}

	for _, d := range descriptors {
		switch {
		case d.Key == "":
			return nil, errors.New("route key is empty")
		case !strings.HasPrefix(d.Path, "/"):
			return nil, fmt.Errorf("route %s: path %q must start with /", d.Key, d.Path)
		case d.Access != AccessPublic && d.Access != AccessProtected && d.Access != AccessAdmin:
			return nil, fmt.Errorf("route %s: unknown access level %q", d.Key, d.Access)
		}

		if _, dup := t.byKey[d.Key]; dup {
			return nil, fmt.Errorf("route %s: duplicate key", d.Key)
		}

		d.RequiredRoles = slices.Clone(d.RequiredRoles)
		t.byKey[d.Key] = len(t.routes)
		t.routes = append(t.routes, d)
	}

	return t, nil
}

// MustNewTable is NewTable for static tables; it panics on an invalid table.
func MustNewTable(descriptors ...Descriptor) *Table {
	t, err := NewTable(descriptors...)
	if err != nil {
		panic(err)
	}
	return t
}

var defaultTable = MustNewTable(
	Descriptor{Key: RouteAuthLogin, Path: LoginPath, Access: AccessPublic},
	Descriptor{Key: RouteAuthRegister, Path: "/auth/register", Access: AccessPublic},
	Descriptor{Key: RouteHome, Path: "/", Access: AccessPublic},
	Descriptor{Key: RouteUnauthorized, Path: "/unauthorized", Access: AccessPublic},
	Descriptor{Key: RouteDashboard, Path: DashboardPath, Access: AccessProtected, RequiredRoles: []string{token.RoleUser}},
	Descriptor{Key: RouteRoom, Path: "/rooms/:roomId", Access: AccessProtected, RequiredRoles: []string{token.RoleUser, token.RoleAdmin}},
	Descriptor{Key: RouteQuizList, Path: "/quizzes", Access: AccessProtected, RequiredRoles: []string{token.RoleUser, token.RoleAdmin}},
	Descriptor{Key: RouteQuizEditor, Path: "/quizzes/:quizId/edit", Access: AccessProtected, RequiredRoles: []string{token.RoleUser, token.RoleAdmin}},
	Descriptor{Key: RouteAdminDashboard, Path: AdminHomePath, Access: AccessAdmin, RequiredRoles: []string{token.RoleAdmin}},
	Descriptor{Key: RouteAdminUsers, Path: "/admin/users", Access: AccessAdmin, RequiredRoles: []string{token.RoleAdmin}, FallbackPath: DashboardPath},
)

// DefaultTable returns the gateway's built-in route table.
func DefaultTable() *Table {
	return defaultTable
}

// Lookup returns the descriptor registered under key.
func (t *Table) Lookup(key RouteKey) (Descriptor, bool) {
	i, ok := t.byKey[key]
	if !ok {
		return Descriptor{}, false
	}
	return t.copyAt(i), true
}

// All returns every descriptor in declaration order.
func (t *Table) All() []Descriptor {
	out := make([]Descriptor, len(t.routes))
	for i := range t.routes {
		out[i] = t.copyAt(i)
	}
	return out
}

func (t *Table) copyAt(i int) Descriptor {
	d := t.routes[i]
	d.RequiredRoles = slices.Clone(d.RequiredRoles)
	return d
}

// CanAccess reports whether a principal holding roles may reach the route named key.
//
// Unknown keys are denied. Public routes are always allowed. Other routes are allowed when roles
// holds any one of RequiredRoles; a non-public route without RequiredRoles allows everyone
// (see Validate).
func (t *Table) CanAccess(key RouteKey, roles []string) bool {
	i, ok := t.byKey[key]
	if !ok {
		return false
	}
	return canAccess(t.routes[i], roles)
}

func canAccess(d Descriptor, roles []string) bool {
	if d.Public() || len(d.RequiredRoles) == 0 {
		return true
	}

	for _, required := range d.RequiredRoles {
		if slices.Contains(roles, required) {
			return true
		}
	}
	return false
}

// AccessibleRoutes returns the descriptors CanAccess allows for roles, in declaration order.
func (t *Table) AccessibleRoutes(roles []string) []Descriptor {
	out := make([]Descriptor, 0, len(t.routes))
	for i, d := range t.routes {
		if canAccess(d, roles) {
			out = append(out, t.copyAt(i))
		}
	}
	return out
}

// PermissiveRouteError reports a non-public route that declares no required roles
// and is therefore open to any principal.
type PermissiveRouteError struct {
	Key    RouteKey
	Access Access
}

func (e *PermissiveRouteError) Error() string {
	return fmt.Sprintf("route %s has access %q but no required roles", e.Key, e.Access)
}

// Validate returns one *PermissiveRouteError per non-public route without required roles,
// joined with errors.Join. It returns nil for a fully pinned table.
func (t *Table) Validate() error {
	var errList []error
	for _, d := range t.routes {
		if !d.Public() && len(d.RequiredRoles) == 0 {
			errList = append(errList, &PermissiveRouteError{Key: d.Key, Access: d.Access})
		}
	}
	return errors.Join(errList...)
}

// Match resolves a concrete path such as /rooms/42 to its descriptor.
// Segments starting with ':' match any single non-empty segment. When several descriptors match,
// the one with the most literal segments wins. Query strings and trailing slashes are ignored.
func (t *Table) Match(path string) (Descriptor, bool) {
	target := splitPath(path)

	best, bestScore := -1, -1
	for i, d := range t.routes {
		score, ok := matchSegments(splitPath(d.Path), target)
		if ok && score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		return Descriptor{}, false
	}
	return t.copyAt(best), true
}

func splitPath(path string) []string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// matchSegments returns the number of literal segments matched.
func matchSegments(pattern, target []string) (int, bool) {
	if len(pattern) != len(target) {
		return 0, false
	}

	literals := 0
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			if target[i] == "" {
				return 0, false
			}
			continue
		}
		if seg != target[i] {
			return 0, false
		}
		literals++
	}
	return literals, true
}
