package handler

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"eduportal/internal/app/authz"
	"eduportal/internal/pkg/errs"
	"eduportal/internal/pkg/resp"
)

type navigateResponse struct {
	authz.Decision

	// Route is the matched descriptor, absent for unknown paths.
	Route *authz.Descriptor `json:"route,omitempty"`
}

// HandleNavigate answers whether the UI shell may navigate to ?path= and where to go otherwise.
// Paths in the answer, returnUrl included, are unmounted route paths like the one asked about.
func HandleNavigate(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if !strings.HasPrefix(path, "/") {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		decision, matched := deps.Resolver.NavigatePath(path)

		out := navigateResponse{Decision: decision}
		if matched {
			if d, ok := deps.Resolver.Table().Match(path); ok {
				out.Route = &d
			}
		}

		resp.RespondSuccess(w, r, out)
	}
}

// NavigationGuard gates every page under mount. Allowed requests pass through; other decisions
// become a 302 to the decided location, itself under mount. The returnUrl of a login redirect
// is mounted as well, so following it lands back on a gated page.
func NavigationGuard(resolver *authz.Resolver, mount string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target := strings.TrimPrefix(r.URL.Path, mount)
			if target == "" {
				target = "/"
			}
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}

			decision, _ := resolver.NavigatePath(target)
			if decision.Outcome == authz.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			zerolog.Ctx(r.Context()).Debug().
				Str("target", target).
				Str("outcome", decision.Outcome.String()).
				Str("location", decision.Location).
				Msg("Navigation redirected")

			location := mount + decision.Location
			if decision.Outcome == authz.RedirectedWithReturnURL {
				location = mount + authz.LoginLocation(mount+decision.ReturnURL)
			}

			http.Redirect(w, r, location, http.StatusFound)
		})
	}
}

// HandleShell answers an allowed page request with the route it resolved to.
func HandleShell(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, AppMount)
		if path == "" {
			path = "/"
		}

		d, ok := deps.Resolver.Table().Match(path)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrRouteUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"path":  path,
			"route": d,
		})
	}
}
