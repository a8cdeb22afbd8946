package handler

import (
	"net/http"

	"eduportal/internal/app/authz"
	"eduportal/internal/app/user"
	"eduportal/internal/pkg/resp"
)

// HandleGetSession reports the current Identity. No session is a normal answer, not an error.
func HandleGetSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, user.Current(deps.Resolver))
	}
}

type routesResponse struct {
	Routes []authz.Descriptor `json:"routes"`
	Home   string             `json:"home"`
}

// HandleListRoutes lists the routes the current roles may reach, for building navigation menus.
func HandleListRoutes(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles := deps.Resolver.CurrentRoles()

		resp.RespondSuccess(w, r, routesResponse{
			Routes: deps.Resolver.AccessibleRoutes(roles),
			Home:   authz.DefaultRouteFor(roles),
		})
	}
}
