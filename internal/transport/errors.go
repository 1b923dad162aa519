package transport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned from operations on a closed connection and passed to
	// pending AckFuncs when the connection goes away.
	ErrClosed = errors.New("transport closed")
	// ErrNotOpen is returned when emitting before the namespace connect completed.
	ErrNotOpen = errors.New("transport not open")
	// ErrServerDisconnect reports that the server closed the namespace or engine session.
	ErrServerDisconnect = errors.New("server disconnect")
)

// ConnectError describes a failed connection attempt. Permanent errors are caused by
// configuration (unknown endpoint or namespace) and will not go away on retry.
type ConnectError struct {
	Message   string
	Permanent bool
	Err       error
}

func (e *ConnectError) Error() string {
	if e.Err != nil && e.Message == "" {
		return "connect error: " + e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("connect error: %s: %v", e.Message, e.Err)
	}
	return "connect error: " + e.Message
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a ConnectError that must not be retried.
func IsPermanent(err error) bool {
	var connectErr *ConnectError
	if errors.As(err, &connectErr) {
		return connectErr.Permanent
	}
	return false
}

// permanentConnectMessage reports messages of connect_error packets caused by
// server configuration rather than by the client state.
func permanentConnectMessage(message string) bool {
	return strings.EqualFold(message, "Invalid namespace")
}
