/*
Package handler provides HTTP handler functions for signing in and out.
*/
package handler

import (
	"net/http"

	"eduportal/internal/app/user"
	"eduportal/internal/pkg/errs"
	"eduportal/internal/pkg/req"
	"eduportal/internal/pkg/resp"
)

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// HandleLogin exchanges credentials with the backend and replaces the active Session.
// It answers with the new Identity.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if _, err := deps.Auth.Login(r.Context(), input.Username, input.Password, input.Remember); err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		resp.RespondSuccess(w, r, user.Current(deps.Resolver))
	}
}

// HandleLogout clears the active Session.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Auth.Logout(); err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		resp.RespondSuccess(w, r, user.Current(deps.Resolver))
	}
}
