package authz

import "net/url"

// Outcome is the result of a navigation attempt.
type Outcome int

const (
	// Allowed lets the navigation proceed.
	Allowed Outcome = iota

	// Redirected sends the principal to Decision.Location.
	Redirected

	// RedirectedWithReturnURL sends the principal to the login page, remembering the original target.
	RedirectedWithReturnURL
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Redirected:
		return "redirected"
	case RedirectedWithReturnURL:
		return "redirected_with_return_url"
	default:
		return "unknown"
	}
}

// MarshalText lets Outcome appear by name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Decision is the navigation guard's answer for one target.
type Decision struct {
	Outcome Outcome `json:"outcome"`

	// Location is where to go. For Allowed it is the original target.
	Location string `json:"location"`

	// ReturnURL is set for RedirectedWithReturnURL.
	ReturnURL string `json:"returnUrl,omitempty"`
}

// Navigate decides a navigation to target, which is the concrete path of the route named key.
//
// A session whose token is expired or unreadable counts as absent. Unknown keys fail closed and
// redirect to the landing path of the current roles.
func (r *Resolver) Navigate(key RouteKey, target string) Decision {
	d, ok := r.table.Lookup(key)
	if !ok {
		r.logger.Debug().Str("route_key", string(key)).Msg("Navigation to unknown route")
		return Decision{Outcome: Redirected, Location: DefaultRouteFor(r.CurrentRoles())}
	}
	return r.decide(d, target)
}

// NavigatePath matches path against the table and decides the navigation.
// The reported bool is false when no route matches; the Decision is then a redirect
// to the landing path of the current roles.
func (r *Resolver) NavigatePath(path string) (Decision, bool) {
	d, ok := r.table.Match(path)
	if !ok {
		return Decision{Outcome: Redirected, Location: DefaultRouteFor(r.CurrentRoles())}, false
	}
	return r.decide(d, path), true
}

// LoginLocation returns the login path with returnTo carried in the returnUrl query parameter.
func LoginLocation(returnTo string) string {
	return LoginPath + "?" + url.Values{ReturnURLParam: {returnTo}}.Encode()
}

func (r *Resolver) decide(d Descriptor, target string) Decision {
	if d.Public() {
		return Decision{Outcome: Allowed, Location: target}
	}

	if !r.IsAuthenticated() || r.IsSessionExpired() {
		return Decision{
			Outcome:   RedirectedWithReturnURL,
			Location:  LoginLocation(target),
			ReturnURL: target,
		}
	}

	roles := r.CurrentRoles()
	if !canAccess(d, roles) {
		location := d.FallbackPath
		if location == "" {
			location = DefaultRouteFor(roles)
		}
		return Decision{Outcome: Redirected, Location: location}
	}

	return Decision{Outcome: Allowed, Location: target}
}
