// Package sioproto encodes and decodes the Engine.IO v4 frames and Socket.IO v5
// packets carried over a websocket connection.
package sioproto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
)

// EngineType is an Engine.IO packet type, sent as the first byte of every frame.
type EngineType byte

const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// PacketType is a Socket.IO packet type carried inside an Engine.IO message frame.
type PacketType int

const (
	PacketConnect PacketType = iota
	PacketDisconnect
	PacketEvent
	PacketAck
	PacketConnectError
	PacketBinaryEvent
	PacketBinaryAck
)

func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "connect"
	case PacketDisconnect:
		return "disconnect"
	case PacketEvent:
		return "event"
	case PacketAck:
		return "ack"
	case PacketConnectError:
		return "connect_error"
	case PacketBinaryEvent:
		return "binary_event"
	case PacketBinaryAck:
		return "binary_ack"
	default:
		return "unknown"
	}
}

// DefaultNamespace is the namespace used when none is set explicitly.
const DefaultNamespace = "/"

var (
	ErrEmptyFrame         = errors.New("empty frame")
	ErrUnknownPacketType  = errors.New("unknown packet type")
	ErrBinaryUnsupported  = errors.New("binary packets are not supported")
	ErrMalformedPacket    = errors.New("malformed packet")
	ErrMissingEventName   = errors.New("event packet without name")
	ErrUnexpectedPayload  = errors.New("unexpected payload")
	ErrNotMessageFrame    = errors.New("not a message frame")
	errAckWithoutID       = errors.New("ack packet without id")
	errInvalidEventSchema = errors.New("event payload must be a non-empty array")
)

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      PacketType
	Namespace string
	// HasID reports whether ID is set. Events that expect an acknowledgement and all
	// acks carry an id.
	HasID bool
	ID    uint64
	Data  json.RawMessage
}

// OpenPayload is sent by the server in the Engine.IO open frame.
type OpenPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

// ConnectErrorPayload is the body of a connect_error packet.
type ConnectErrorPayload struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// EngineFrame splits an Engine.IO frame into its type and payload.
func EngineFrame(frame []byte) (EngineType, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	t := EngineType(frame[0])
	if t < EngineOpen || t > EngineNoop {
		return 0, nil, fmt.Errorf("%w: engine %q", ErrUnknownPacketType, frame[0])
	}
	return t, frame[1:], nil
}

// DecodeOpen decodes the payload of an Engine.IO open frame.
func DecodeOpen(payload []byte) (OpenPayload, error) {
	var p OpenPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return OpenPayload{}, fmt.Errorf("decode open payload: %w", err)
	}
	return p, nil
}

// Encode returns the Engine.IO message frame carrying p.
func Encode(p Packet) ([]byte, error) {
	if p.Type < PacketConnect || p.Type > PacketBinaryAck {
		return nil, ErrUnknownPacketType
	}
	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return nil, ErrBinaryUnsupported
	}
	var b strings.Builder
	b.Grow(len(p.Data) + len(p.Namespace) + 16)
	b.WriteByte(byte(EngineMessage))
	b.WriteByte(byte('0' + p.Type))
	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.HasID {
		b.WriteString(strconv.FormatUint(p.ID, 10))
	}
	b.Write(p.Data)
	return []byte(b.String()), nil
}

// Decode parses an Engine.IO message frame into a Socket.IO packet.
func Decode(frame []byte) (Packet, error) {
	t, payload, err := EngineFrame(frame)
	if err != nil {
		return Packet{}, err
	}
	if t != EngineMessage {
		return Packet{}, ErrNotMessageFrame
	}
	return DecodePacket(payload)
}

// DecodePacket parses a Socket.IO packet without the Engine.IO prefix. Grammar:
// <type>[<attachments>-][/<namespace>,][<id>][<json>].
func DecodePacket(s []byte) (Packet, error) {
	if len(s) == 0 {
		return Packet{}, ErrEmptyFrame
	}
	if s[0] < '0' || s[0] > '6' {
		return Packet{}, fmt.Errorf("%w: %q", ErrUnknownPacketType, s[0])
	}
	p := Packet{Type: PacketType(s[0] - '0'), Namespace: DefaultNamespace}
	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return Packet{}, ErrBinaryUnsupported
	}
	i := 1

	if i < len(s) && s[i] == '/' {
		end := i
		for end < len(s) && s[end] != ',' {
			end++
		}
		p.Namespace = string(s[i:end])
		i = end
		if i < len(s) {
			// Skip the comma.
			i++
		}
	}

	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > start {
		id, err := strconv.ParseUint(string(s[start:i]), 10, 64)
		if err != nil {
			return Packet{}, fmt.Errorf("%w: id: %v", ErrMalformedPacket, err)
		}
		p.HasID = true
		p.ID = id
	}

	if i < len(s) {
		data := s[i:]
		if !json.Valid(data) {
			return Packet{}, fmt.Errorf("%w: invalid json payload", ErrMalformedPacket)
		}
		p.Data = append(json.RawMessage(nil), data...)
	}
	if p.Type == PacketAck && !p.HasID {
		return Packet{}, errAckWithoutID
	}
	return p, nil
}

// ConnectPacket builds a namespace connect packet with optional auth payload.
func ConnectPacket(namespace string, auth any) (Packet, error) {
	p := Packet{Type: PacketConnect, Namespace: namespace}
	if auth != nil {
		data, err := json.Marshal(auth)
		if err != nil {
			return Packet{}, fmt.Errorf("encode auth: %w", err)
		}
		p.Data = data
	}
	return p, nil
}

// EventPacket builds an event packet ["event", args...]. Set withID to request an ack.
func EventPacket(namespace string, event string, id uint64, withID bool, args ...any) (Packet, error) {
	if event == "" {
		return Packet{}, ErrMissingEventName
	}
	items := make([]any, 0, len(args)+1)
	items = append(items, event)
	items = append(items, args...)
	data, err := json.Marshal(items)
	if err != nil {
		return Packet{}, fmt.Errorf("encode event %s: %w", event, err)
	}
	return Packet{Type: PacketEvent, Namespace: namespace, HasID: withID, ID: id, Data: data}, nil
}

// AckPacket builds an ack packet answering a server event with the given id.
func AckPacket(namespace string, id uint64, args ...any) (Packet, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return Packet{}, fmt.Errorf("encode ack: %w", err)
	}
	return Packet{Type: PacketAck, Namespace: namespace, HasID: true, ID: id, Data: data}, nil
}

// DecodeEvent returns the event name and its raw arguments.
func DecodeEvent(data json.RawMessage) (string, []json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil || len(items) == 0 {
		return "", nil, errInvalidEventSchema
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil || name == "" {
		return "", nil, ErrMissingEventName
	}
	return name, items[1:], nil
}

// DecodeAck returns the raw arguments of an ack packet.
func DecodeAck(data json.RawMessage) ([]json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: ack must be an array", ErrUnexpectedPayload)
	}
	return items, nil
}

// DecodeConnectError extracts the message of a connect_error packet. Older servers send
// a bare JSON string.
func DecodeConnectError(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var p ConnectErrorPayload
	if err := json.Unmarshal(data, &p); err == nil && p.Message != "" {
		return p.Message
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}
