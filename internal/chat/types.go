package chat

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
)

// State of the connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// MessageID is a server-assigned message id. Servers send it either as a JSON
// string or as a number, both decode to the same textual form.
type MessageID string

func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("message id: unexpected %s", data)
	}
	*id = MessageID(data)
	return nil
}

// Message as sent over the wire.
type Message struct {
	ID         MessageID `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    *string   `json:"content"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Text returns content or an empty string for content-less (image) messages.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// SendRequest describes an outgoing message. An empty Content is sent as null.
type SendRequest struct {
	ReceiverID int64
	Content    string
	ImageURL   string
}

// ReadReceipt tells that messages sent to By were read by them.
type ReadReceipt struct {
	By int64 `json:"by"`
}

// TypingStatus of a peer.
type TypingStatus struct {
	UserID   int64 `json:"userId"`
	IsTyping bool  `json:"isTyping"`
}

// ErrorKind classifies events of the error feed.
type ErrorKind int

const (
	// ErrorKindTransport is a network failure, the connection is retried.
	ErrorKindTransport ErrorKind = iota
	// ErrorKindConfiguration is a failure which does not go away on retry
	// (unknown endpoint or namespace).
	ErrorKindConfiguration
	// ErrorKindServer is an error event pushed by the server.
	ErrorKindServer
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransport:
		return "transport"
	case ErrorKindConfiguration:
		return "configuration"
	case ErrorKindServer:
		return "server"
	default:
		return "unknown"
	}
}

// ErrorEvent is published on the error feed.
type ErrorEvent struct {
	Kind      ErrorKind
	Message   string
	Permanent bool
	Err       error
}

type authPayload struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId"`
}

type sendMessagePayload struct {
	ReceiverID int64 `json:"receiverId"`
	// Content is null for image-only messages.
	Content  *string `json:"content"`
	SenderID int64   `json:"senderId"`
	ImageURL string  `json:"imageUrl,omitempty"`
}

type markAsReadPayload struct {
	SenderID int64 `json:"senderId"`
	ReaderID int64 `json:"readerId"`
}

type typingPayload struct {
	ReceiverID int64 `json:"receiverId"`
	IsTyping   bool  `json:"isTyping"`
}
