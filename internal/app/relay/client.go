/*
Package relay forwards presence notifications to the browser over a WebSocket.

This file defines the Client, one browser connection. The browser only listens: ReadPump exists to
answer heartbeats and notice the browser leaving, WritePump owns every write to the socket.
*/
package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"eduportal/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a Pong from the browser.
	pongWait = 60 * time.Second

	// frequency at which Ping messages are sent.
	pingPeriod = (pongWait * 9) / 10

	// maximum size of a message the browser may send.
	maxMessageSize = 512

	// CloseCodeKicked is a custom WebSocket Close Code (4000-4999 range)
	// telling the browser the member was removed from the room.
	CloseCodeKicked = 4001

	// CloseCodeRoomDeleted tells the browser the room no longer exists.
	CloseCodeRoomDeleted = 4002

	// CloseCodeGoingAway is sent when the gateway shuts down.
	CloseCodeGoingAway = websocket.CloseGoingAway
)

// ErrClientClosed is returned when sending to a client that is shutting down.
var ErrClientClosed = errors.New("relay client closed")

type closeFrame struct {
	code   int
	reason string
}

// Client is one browser WebSocket connection.
type Client struct {
	id   string
	conn *websocket.Conn

	// a buffered channel of messages waiting to be written.
	send chan []byte

	// closeReq carries the final close frame to WritePump.
	closeReq  chan closeFrame
	closeOnce sync.Once

	// done is closed when the browser side of the connection is gone.
	done     chan struct{}
	doneOnce sync.Once

	logger zerolog.Logger
}

// NewClient wraps conn. Fields from logCtx are added to the client's logger.
func NewClient(conn *websocket.Conn, logCtx map[string]any) *Client {
	id := uuid.NewString()

	return &Client{
		id:       id,
		conn:     conn,
		send:     make(chan []byte, 16),
		closeReq: make(chan closeFrame, 1),
		done:     make(chan struct{}),
		logger: logx.Component("relay").With().
			Str("client_id", id).
			Fields(logCtx).
			Logger(),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Done is closed once the browser has disconnected or the connection failed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// ReadPump reads until the browser goes away, then marks the client done.
// Inbound messages are ignored.
func (c *Client) ReadPump() {
	defer c.markDone()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Browser connection closed unexpectedly")
			}
			return
		}
	}
}

// WritePump writes queued messages, heartbeats and the final close frame.
// It closes the connection on exit.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.markDone()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case message := <-c.send:
			if !c.write(websocket.TextMessage, message) {
				return
			}

		case frame := <-c.closeReq:
			c.drain()
			c.writeClose(frame)
			return

		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}

		case <-c.done:
			return
		}
	}
}

// drain flushes messages queued before the close request.
func (c *Client) drain() {
	for {
		select {
		case message := <-c.send:
			if !c.write(websocket.TextMessage, message) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Warn().Err(err).Int("message_type", messageType).Msg("Error writing message")
		return false
	}
	return true
}

func (c *Client) writeClose(frame closeFrame) {
	c.logger.Info().
		Int("close_code", frame.code).
		Str("reason", frame.reason).
		Msg("Closing browser connection")

	closeMessage := websocket.FormatCloseMessage(frame.code, truncateReason(frame.reason))
	if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send close message")
	}
}

// close frame payloads are limited to 125 bytes, two of which hold the code.
func truncateReason(reason string) string {
	const limit = 123
	if len(reason) <= limit {
		return reason
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// Send queues v as a JSON text message.
func (c *Client) Send(v any) error {
	message, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error marshaling message for browser")
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Browser send queue full, dropping message")
		return errors.New("relay send queue full")
	}
}

// Close asks WritePump to flush pending messages and close with code and reason.
// Only the first call has an effect.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeReq <- closeFrame{code: code, reason: reason}
	})
}
