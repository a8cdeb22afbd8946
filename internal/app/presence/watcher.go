package presence

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eduportal/internal/pkg/logx"
)

// DefaultRetryDelay is the fixed wait between connection attempts.
const DefaultRetryDelay = 5 * time.Second

// State is the connection state of a Watcher.
type State int32

const (
	// Disconnected means no subscription is open, either before the first attempt or between retries.
	Disconnected State = iota

	// Connecting means a subscription attempt is in flight.
	Connecting

	// Connected means the topic subscription is live.
	Connected

	// Terminated means the watcher was stopped. It is final.
	Terminated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithRetryDelay overrides DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.retryDelay = d
		}
	}
}

// WithListener registers fn to be called with the Event when it fires.
// fn runs on the watcher goroutine. It may query the watcher but must not call Stop.
func WithListener(fn func(Event)) Option {
	return func(w *Watcher) {
		w.listener = fn
	}
}

// Watcher subscribes to one presence topic and reports at most one Event.
type Watcher struct {
	id        string
	kind      Kind
	subjectID string
	topic     string

	broker     Broker
	tokens     TokenSource
	retryDelay time.Duration
	listener   func(Event)

	state    atomic.Int32
	attempts atomic.Int64
	received atomic.Int64

	// mu guards the lifecycle fields below.
	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	// deliverMu serializes delivery against Stop and is held while the listener runs.
	deliverMu sync.Mutex
	stopped   bool
	events    chan Event
	stopOne   sync.Once

	// eventMu guards the one-shot result.
	eventMu sync.Mutex
	fired   bool
	event   Event

	logger zerolog.Logger
}

// NewRoomWatcher returns a watcher for deletion of roomID.
func NewRoomWatcher(broker Broker, tokens TokenSource, roomID string, opts ...Option) (*Watcher, error) {
	topic, err := RoomDeletedTopic(roomID)
	if err != nil {
		return nil, err
	}
	return newWatcher(RoomDeleted, roomID, topic, broker, tokens, opts), nil
}

// NewKickWatcher returns a watcher for removal of userID.
func NewKickWatcher(broker Broker, tokens TokenSource, userID string, opts ...Option) (*Watcher, error) {
	topic, err := MemberKickedTopic(userID)
	if err != nil {
		return nil, err
	}
	return newWatcher(MemberKicked, userID, topic, broker, tokens, opts), nil
}

func newWatcher(kind Kind, subjectID, topic string, broker Broker, tokens TokenSource, opts []Option) *Watcher {
	w := &Watcher{
		id:         uuid.NewString(),
		kind:       kind,
		subjectID:  subjectID,
		topic:      topic,
		broker:     broker,
		tokens:     tokens,
		retryDelay: DefaultRetryDelay,
		events:     make(chan Event, 1),
	}

	if w.tokens == nil {
		w.tokens = func() (string, bool) { return "", false }
	}

	for _, opt := range opts {
		opt(w)
	}

	w.logger = logx.Component("presence").With().
		Str("watcher_id", w.id).
		Str("kind", kind.String()).
		Str("topic", topic).
		Logger()

	return w
}

// ID returns the watcher's unique id.
func (w *Watcher) ID() string { return w.id }

// Kind returns the kind of Event this watcher reports.
func (w *Watcher) Kind() Kind { return w.kind }

// Topic returns the subscribed topic.
func (w *Watcher) Topic() string { return w.topic }

// State returns the current connection state.
func (w *Watcher) State() State { return State(w.state.Load()) }

// Attempts returns the number of connection attempts made so far.
func (w *Watcher) Attempts() int64 { return w.attempts.Load() }

// Received returns the number of broker messages handled on the watched topic.
func (w *Watcher) Received() int64 { return w.received.Load() }

// Events returns a channel carrying the Event, if it fires. It is closed by Stop.
func (w *Watcher) Events() <-chan Event { return w.events }

// Fired returns the Event once it has fired. It never resets within the watcher's lifetime.
func (w *Watcher) Fired() (Event, bool) {
	w.eventMu.Lock()
	defer w.eventMu.Unlock()
	return w.event, w.fired
}

// RoomDeleted reports whether a room watcher has seen the deletion.
func (w *Watcher) RoomDeleted() bool {
	ev, ok := w.Fired()
	return ok && ev.Kind == RoomDeleted
}

// KickMessage returns the removal reason once a kick watcher has fired.
func (w *Watcher) KickMessage() (string, bool) {
	ev, ok := w.Fired()
	if !ok || ev.Kind != MemberKicked {
		return "", false
	}
	return ev.Message, true
}

// Start begins watching in the background. Without a current token the watcher stays
// Disconnected and inert. Calling Start more than once, or after Stop, does nothing.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}
	w.started = true

	if _, ok := w.tokens(); !ok {
		w.logger.Warn().Msg("No active session, presence watcher stays disconnected")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(runCtx, w.done)
}

// Stop unsubscribes, closes the connection and waits for the watcher goroutine to exit.
// After Stop returns no listener call or Event delivery happens. Stop is idempotent.
func (w *Watcher) Stop() {
	w.stopOne.Do(func() {
		w.deliverMu.Lock()
		w.stopped = true
		w.deliverMu.Unlock()

		w.mu.Lock()
		w.started = true
		cancel, done := w.cancel, w.done
		w.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}

		w.state.Store(int32(Terminated))
		close(w.events)

		w.logger.Debug().Int64("attempts", w.Attempts()).Msg("Presence watcher stopped")
	})
}

func (w *Watcher) setState(s State) {
	for {
		cur := w.state.Load()
		if State(cur) == Terminated || cur == int32(s) {
			return
		}
		if w.state.CompareAndSwap(cur, int32(s)) {
			w.logger.Debug().Str("from", State(cur).String()).Str("to", s.String()).Msg("Presence watcher state changed")
			return
		}
	}
}

func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		w.connectAndConsume(ctx)

		if ctx.Err() != nil {
			return
		}
		w.setState(Disconnected)

		timer := time.NewTimer(w.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connectAndConsume runs one connection attempt until the subscription ends or ctx is cancelled.
func (w *Watcher) connectAndConsume(ctx context.Context) {
	raw, ok := w.tokens()
	if !ok {
		w.logger.Info().Msg("Session gone, waiting before next presence attempt")
		return
	}

	w.setState(Connecting)
	attempt := w.attempts.Add(1)

	sub, err := w.broker.Subscribe(ctx, raw, w.topic)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn().Err(err).Int64("attempt", attempt).Dur("retry_in", w.retryDelay).Msg("Presence subscription failed")
		}
		return
	}
	defer func() {
		if err := sub.Close(); err != nil {
			w.logger.Debug().Err(err).Msg("Presence subscription close error")
		}
	}()

	w.setState(Connected)
	w.logger.Info().Int64("attempt", attempt).Msg("Presence watcher connected")

	messages := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				w.logger.Warn().Err(sub.Err()).Dur("retry_in", w.retryDelay).Msg("Presence subscription ended")
				return
			}
			w.handle(msg)
		}
	}
}

func (w *Watcher) handle(msg Message) {
	if msg.Topic != "" && msg.Topic != w.topic {
		w.logger.Debug().Str("message_topic", msg.Topic).Msg("Ignoring message for another topic")
		return
	}
	defer w.received.Add(1)

	text := strings.TrimSpace(string(msg.Body))
	if text == "" {
		text = DefaultRoomDeletedMessage
		if w.kind == MemberKicked {
			text = DefaultKickMessage
		}
	}

	w.emit(Event{Kind: w.kind, SubjectID: w.subjectID, Message: text})
}

// emit delivers ev once. Later calls, and calls after Stop, are dropped.
func (w *Watcher) emit(ev Event) {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()

	if w.stopped {
		return
	}

	w.eventMu.Lock()
	if w.fired {
		w.eventMu.Unlock()
		return
	}
	w.fired = true
	w.event = ev
	w.eventMu.Unlock()

	w.events <- ev

	w.logger.Info().Str("subject_id", ev.SubjectID).Msg("Presence event fired")

	if w.listener != nil {
		w.listener(ev)
	}
}
