/*
Package stompws subscribes to STOMP topics over a WebSocket connection.

Each subscription owns its own connection. The bearer token is sent both on the WebSocket
handshake and as a STOMP CONNECT header, so brokers that authenticate at either layer accept it.
*/
package stompws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"eduportal/internal/app/presence"
	"eduportal/internal/pkg/logx"
)

const (
	// DefaultHandshakeTimeout bounds the WebSocket upgrade and the STOMP CONNECT exchange.
	DefaultHandshakeTimeout = 10 * time.Second

	// unsubscribeWait bounds the wait for the broker's UNSUBSCRIBE receipt on Close.
	unsubscribeWait = 2 * time.Second
)

// ErrConnectionClosed is reported by Subscription.Err when the broker closed the stream without an error frame.
var ErrConnectionClosed = errors.New("broker connection closed")

// Config configures a Broker.
type Config struct {
	// URL is the ws:// or wss:// broker endpoint.
	URL string

	// HeartBeat is the STOMP heart-beat interval in both directions. Zero disables heart-beats.
	HeartBeat time.Duration

	// HandshakeTimeout overrides DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
}

// Broker implements presence.Broker on STOMP over WebSocket.
type Broker struct {
	url              string
	host             string
	heartBeat        time.Duration
	handshakeTimeout time.Duration

	dialer *websocket.Dialer
	logger zerolog.Logger
}

var _ presence.Broker = (*Broker)(nil)

// New validates cfg and returns a Broker.
func New(cfg Config) (*Broker, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("broker url %q: scheme must be ws or wss", cfg.URL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("broker url %q: missing host", cfg.URL)
	}

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	return &Broker{
		url:              u.String(),
		host:             u.Hostname(),
		heartBeat:        cfg.HeartBeat,
		handshakeTimeout: timeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
			Subprotocols:     []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		},
		logger: logx.Component("stompws"),
	}, nil
}

// Subscribe connects with token and subscribes to topic.
func (b *Broker) Subscribe(ctx context.Context, token, topic string) (presence.Subscription, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := b.dialer.DialContext(ctx, b.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial broker (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	rw := newWSConn(ws)

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(b.host),
		stomp.ConnOpt.HeartBeat(b.heartBeat, b.heartBeat),
	}
	if token != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", "Bearer "+token))
	}

	if err := ws.SetReadDeadline(time.Now().Add(b.handshakeTimeout)); err != nil {
		rw.Close()
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}

	conn, err := stomp.Connect(rw, opts...)
	if err != nil {
		rw.Close()
		return nil, fmt.Errorf("stomp connect: %w", err)
	}

	if err := ws.SetReadDeadline(time.Time{}); err != nil {
		_ = conn.MustDisconnect()
		return nil, fmt.Errorf("clear handshake deadline: %w", err)
	}

	sub, err := conn.Subscribe(topic, stomp.AckAuto)
	if err != nil {
		_ = conn.MustDisconnect()
		return nil, fmt.Errorf("stomp subscribe %s: %w", topic, err)
	}

	s := &subscription{
		conn:     conn,
		sub:      sub,
		messages: make(chan presence.Message),
		closing:  make(chan struct{}),
		logger:   b.logger.With().Str("topic", topic).Logger(),
	}
	go s.pump()

	s.logger.Debug().Str("server", conn.Server()).Msg("STOMP subscription established")
	return s, nil
}

type subscription struct {
	conn *stomp.Conn
	sub  *stomp.Subscription

	messages chan presence.Message

	mu  sync.Mutex
	err error

	closing   chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

func (s *subscription) Messages() <-chan presence.Message {
	return s.messages
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// setErr records the first failure. Failures after Close are the result of Close and are dropped.
func (s *subscription) setErr(err error) {
	select {
	case <-s.closing:
		return
	default:
	}

	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// pump forwards STOMP messages until the subscription ends.
func (s *subscription) pump() {
	defer close(s.messages)

	for {
		select {
		case <-s.closing:
			return

		case msg, ok := <-s.sub.C:
			if !ok {
				s.setErr(ErrConnectionClosed)
				return
			}
			if msg.Err != nil {
				s.setErr(msg.Err)
				return
			}

			select {
			case s.messages <- presence.Message{Topic: msg.Destination, Body: msg.Body}:
			case <-s.closing:
				return
			}
		}
	}
}

// Close unsubscribes and drops the connection.
func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)

		if s.sub.Active() {
			unsubscribed := make(chan error, 1)
			go func() { unsubscribed <- s.sub.Unsubscribe() }()

			select {
			case uerr := <-unsubscribed:
				if uerr != nil {
					s.logger.Debug().Err(uerr).Msg("STOMP unsubscribe failed")
				}
			case <-time.After(unsubscribeWait):
				s.logger.Debug().Msg("STOMP unsubscribe receipt timed out")
			}
		}

		err = s.conn.MustDisconnect()
	})
	return err
}
