package relay

import (
	"context"
	"math"
	"time"

	"eduportal/internal/app/presence"
	"eduportal/internal/pkg/errs"
	"eduportal/internal/pkg/logx"
)

// Policy is the UI contract applied when a terminal presence event arrives.
type Policy struct {
	// Countdown is how long the browser shows the notice before being sent away.
	Countdown time.Duration

	// RedirectTo is the safe landing path.
	RedirectTo string
}

// Notice is the JSON message sent to the browser.
type Notice struct {
	Type             presence.Kind `json:"type"`
	Code             int           `json:"code"`
	SubjectID        string        `json:"subjectId"`
	Message          string        `json:"message"`
	CountdownSeconds int           `json:"countdownSeconds"`
	RedirectTo       string        `json:"redirectTo"`
}

// NewNotice builds the browser notice for ev under p.
func NewNotice(ev presence.Event, p Policy) Notice {
	return Notice{
		Type:             ev.Kind,
		Code:             ErrorCode(ev.Kind),
		SubjectID:        ev.SubjectID,
		Message:          ev.Message,
		CountdownSeconds: int(math.Ceil(p.Countdown.Seconds())),
		RedirectTo:       p.RedirectTo,
	}
}

// ErrorCode returns the application error code the UI shows for kind.
func ErrorCode(kind presence.Kind) int {
	if kind == presence.MemberKicked {
		return errs.ErrSessionKicked
	}
	return errs.ErrRoomDeleted
}

// CloseCode returns the WebSocket close code announcing kind.
func CloseCode(kind presence.Kind) int {
	if kind == presence.MemberKicked {
		return CloseCodeKicked
	}
	return CloseCodeRoomDeleted
}

// Watchers are the subscriptions relayed to one browser. Either may be nil.
type Watchers struct {
	Room *presence.Watcher
	Kick *presence.Watcher
}

func (ws Watchers) each(fn func(*presence.Watcher)) {
	for _, w := range []*presence.Watcher{ws.Room, ws.Kick} {
		if w != nil {
			fn(w)
		}
	}
}

func events(w *presence.Watcher) <-chan presence.Event {
	if w == nil {
		return nil
	}
	return w.Events()
}

// Run starts the watchers and relays the first terminal event to client: the notice first,
// then, after the countdown, a close frame. Run returns when the client is gone or ctx is done,
// and stops every watcher before returning.
func Run(ctx context.Context, client *Client, watchers Watchers, p Policy) {
	logger := client.logger

	watchers.each(func(w *presence.Watcher) { w.Start(ctx) })
	defer watchers.each(func(w *presence.Watcher) { w.Stop() })

	roomEvents, kickEvents := events(watchers.Room), events(watchers.Kick)

	var ev presence.Event
	select {
	case <-ctx.Done():
		client.Close(CloseCodeGoingAway, "server shutting down")
		return
	case <-client.Done():
		logger.Debug().Msg("Browser left before any presence event")
		return
	case e, ok := <-roomEvents:
		if !ok {
			return
		}
		ev = e
	case e, ok := <-kickEvents:
		if !ok {
			return
		}
		ev = e
	}

	logx.Info("Relaying presence event", "kind", ev.Kind.String(), "subject_id", ev.SubjectID, "client_id", client.ID())

	if err := client.Send(NewNotice(ev, p)); err != nil {
		logger.Warn().Err(err).Msg("Failed to queue presence notice")
		return
	}

	timer := time.NewTimer(p.Countdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		client.Close(CloseCode(ev.Kind), ev.Message)
	case <-client.Done():
	case <-ctx.Done():
		client.Close(CloseCode(ev.Kind), ev.Message)
	}
}
