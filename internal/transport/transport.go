// Package transport provides the persistent event connection used by the chat
// connection manager: Socket.IO over a websocket, without polling fallback.
package transport

import (
	"net/http"
	"time"

	"github.com/segmentio/encoding/json"
)

// Handler receives connection events. For a single Conn exactly one of the
// following sequences is delivered: OnConnectError, or OnOpen followed by any
// number of OnEvent calls and finally OnClose. Calls are made from one goroutine,
// so events arrive in the order the server sent them. Nothing is delivered after
// Conn.Close returns.
type Handler interface {
	OnOpen()
	OnClose(err error)
	OnConnectError(err error)
	OnEvent(name string, args []json.RawMessage)
}

// AckFunc receives acknowledgement arguments, or a non-nil error when the
// connection went away before the ack arrived. It is called at most once.
type AckFunc func(args []json.RawMessage, err error)

// Conn is an opened (or opening) connection.
type Conn interface {
	// Emit sends an event without expecting an acknowledgement.
	Emit(event string, payload any) error
	// EmitWithAck sends an event and registers ack for the server response.
	EmitWithAck(event string, payload any, ack AckFunc) error
	// Close closes the connection. It is safe to call many times.
	Close() error
}

// Dialer opens connections. Open must not block: connecting happens in the
// background and its outcome is reported to the Handler.
type Dialer interface {
	Open(opts Options, h Handler) Conn
}

// Options of a single connection.
type Options struct {
	// URL is the websocket endpoint, see SocketURL.
	URL string
	// Namespace to join, "/" when empty.
	Namespace string
	// Auth is sent in the namespace connect packet.
	Auth any
	// Header is added to the websocket upgrade request.
	Header http.Header
	// HandshakeTimeout bounds dialing plus namespace connect.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds every frame write.
	WriteTimeout time.Duration
	// MaxMessageSize limits inbound frame size. Server maxPayload is used when zero.
	MaxMessageSize int64
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = time.Second
	defaultPingInterval     = 25 * time.Second
	defaultPingTimeout      = 20 * time.Second
)
