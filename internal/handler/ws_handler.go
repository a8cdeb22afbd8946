/*
Package handler provides the HTTP handler function for the presence WebSocket.

This file contains HandlePresence, which validates the session and room parameters, upgrades the
connection, and relays room-deleted and member-kicked events to the browser until it leaves.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"eduportal/internal/app/presence"
	"eduportal/internal/app/relay"
	"eduportal/internal/pkg/errs"
	"eduportal/internal/pkg/logx"
	"eduportal/internal/pkg/resp"
)

// HandlePresence creates an HTTP HandlerFunc serving GET /ws/presence?roomId=.
func HandlePresence(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Resolver.IsAuthenticated() {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}
		if deps.Resolver.IsSessionExpired() {
			resp.RespondError(w, r, errs.NewError(errs.ErrSessionStale))
			return
		}

		roomID := r.URL.Query().Get("roomId")
		if err := presence.ValidateID(roomID); err != nil {
			logx.Warn("Presence request rejected: invalid room id", "room_id", roomID)
			resp.RespondError(w, r, errs.Wrap(errs.ErrInvalidTopicID, err))
			return
		}

		tokens := presence.TokenSource(deps.Resolver.CurrentToken)
		opts := []presence.Option{presence.WithRetryDelay(deps.Config.ReconnectDelay)}

		roomWatcher, err := presence.NewRoomWatcher(deps.Broker, tokens, roomID, opts...)
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrInvalidTopicID, err))
			return
		}

		watchers := relay.Watchers{Room: roomWatcher}

		userID, ok := deps.Resolver.CurrentUserID()
		if ok {
			kickWatcher, err := presence.NewKickWatcher(deps.Broker, tokens, userID, opts...)
			if err != nil {
				logx.Warn("Kick notifications disabled: user id unusable in topic", "user_id", userID)
			} else {
				watchers.Kick = kickWatcher
			}
		} else {
			logx.Warn("Kick notifications disabled: token carries no user id", "room_id", roomID)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := relay.NewClient(conn, map[string]any{"room_id": roomID, "user_id": userID})

		go client.WritePump()

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			relay.Run(r.Context(), client, watchers, relay.Policy{
				Countdown:  deps.Config.RedirectCountdown,
				RedirectTo: deps.Config.SafeLandingPath,
			})
		}()

		logx.Info("Presence relay established", "client_id", client.ID(), "room_id", roomID)

		client.ReadPump()
		<-finished
	}
}
