package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by operations issued without a live connection.
	ErrNotConnected = errors.New("not connected")
	// ErrReconnecting is returned instead of ErrNotConnected when a reconnect was
	// started (or is in progress) and the call may be retried shortly.
	ErrReconnecting = fmt.Errorf("reconnecting, retry shortly: %w", ErrNotConnected)
	// ErrAckTimeout is returned when the server did not acknowledge in time.
	ErrAckTimeout = errors.New("acknowledgement timeout")
	// ErrConnectionLost is returned when the connection went away while waiting
	// for an acknowledgement.
	ErrConnectionLost = errors.New("connection lost")
	// ErrMalformedAck is returned for acknowledgements of unknown shape.
	ErrMalformedAck = errors.New("malformed acknowledgement")
)

// ServerError is returned when the server declined an operation.
type ServerError struct {
	Op      string
	Message string
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Message
}
