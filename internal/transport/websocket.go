package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/snapcircle/dmsocket/internal/build"
	"github.com/snapcircle/dmsocket/internal/sioproto"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
)

// WebSocketDialer opens Socket.IO connections over gorilla/websocket.
type WebSocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebSocketDialer creates WebSocketDialer. A nil dialer means websocket.DefaultDialer
// settings with proxy from environment.
func NewWebSocketDialer(dialer *websocket.Dialer) *WebSocketDialer {
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	return &WebSocketDialer{dialer: dialer}
}

// Open starts connecting in background and returns immediately.
func (d *WebSocketDialer) Open(opts Options, h Handler) Conn {
	if opts.Namespace == "" {
		opts.Namespace = sioproto.DefaultNamespace
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		opts:    opts,
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
		acks:    make(map[uint64]AckFunc),
	}
	go c.run(d.dialer)
	return c
}

// wsConn is a single Socket.IO session over websocket. mu protects state below
// it; writeMu serializes frame writes since gorilla connections support one
// concurrent writer.
type wsConn struct {
	opts    Options
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc

	writeMu sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	opened bool
	closed bool
	nextID uint64
	acks   map[uint64]AckFunc

	pingInterval time.Duration
	pingTimeout  time.Duration
}

func (c *wsConn) run(dialer *websocket.Dialer) {
	conn, err := c.dial(dialer)
	if err != nil {
		c.terminate(err)
		return
	}
	if err := c.handshake(conn); err != nil {
		c.terminate(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.opened = true
	c.mu.Unlock()

	c.handler.OnOpen()
	c.readLoop(conn)
}

func (c *wsConn) dial(dialer *websocket.Dialer) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, &ConnectError{Message: "invalid endpoint " + c.opts.URL, Permanent: true, Err: err}
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.HandshakeTimeout)
	defer cancel()
	header := c.opts.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", build.UserAgent())
	}
	conn, resp, err := dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			// 400 is returned by Socket.IO servers for unknown transport or protocol
			// version, 404 for a wrong path.
			permanent := resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound
			return nil, &ConnectError{Message: "websocket handshake: " + resp.Status, Permanent: permanent, Err: err}
		}
		return nil, &ConnectError{Message: "dial", Err: err}
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// handshake waits for the Engine.IO open frame, joins the namespace and waits for
// the server connect packet.
func (c *wsConn) handshake(conn *websocket.Conn) error {
	deadline := time.Now().Add(c.opts.HandshakeTimeout)
	_ = conn.SetReadDeadline(deadline)

	_, frame, err := conn.ReadMessage()
	if err != nil {
		return &ConnectError{Message: "read open frame", Err: err}
	}
	typ, payload, err := sioproto.EngineFrame(frame)
	if err != nil || typ != sioproto.EngineOpen {
		return &ConnectError{Message: "unexpected first frame", Permanent: true, Err: err}
	}
	open, err := sioproto.DecodeOpen(payload)
	if err != nil {
		return &ConnectError{Message: "bad open frame", Permanent: true, Err: err}
	}
	c.pingInterval = time.Duration(open.PingInterval) * time.Millisecond
	if c.pingInterval <= 0 {
		c.pingInterval = defaultPingInterval
	}
	c.pingTimeout = time.Duration(open.PingTimeout) * time.Millisecond
	if c.pingTimeout <= 0 {
		c.pingTimeout = defaultPingTimeout
	}
	limit := c.opts.MaxMessageSize
	if limit <= 0 {
		limit = open.MaxPayload
	}
	if limit > 0 {
		conn.SetReadLimit(limit)
	}

	connect, err := sioproto.ConnectPacket(c.opts.Namespace, c.opts.Auth)
	if err != nil {
		return &ConnectError{Message: "encode connect", Permanent: true, Err: err}
	}
	if err := c.writePacket(conn, connect); err != nil {
		return &ConnectError{Message: "write connect", Err: err}
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return &ConnectError{Message: "await namespace connect", Err: err}
		}
		typ, payload, err := sioproto.EngineFrame(frame)
		if err != nil {
			return &ConnectError{Message: "bad frame", Err: err}
		}
		switch typ {
		case sioproto.EnginePing:
			if err := c.writeFrame(conn, append([]byte{byte(sioproto.EnginePong)}, payload...)); err != nil {
				return &ConnectError{Message: "write pong", Err: err}
			}
			continue
		case sioproto.EngineClose:
			return &ConnectError{Message: "closed by server during handshake", Err: ErrServerDisconnect}
		case sioproto.EngineMessage:
		default:
			continue
		}
		p, err := sioproto.DecodePacket(payload)
		if err != nil {
			return &ConnectError{Message: "bad packet", Err: err}
		}
		if p.Namespace != c.opts.Namespace {
			continue
		}
		switch p.Type {
		case sioproto.PacketConnect:
			_ = conn.SetReadDeadline(time.Now().Add(c.pingInterval + c.pingTimeout))
			return nil
		case sioproto.PacketConnectError:
			message := sioproto.DecodeConnectError(p.Data)
			return &ConnectError{Message: message, Permanent: permanentConnectMessage(message)}
		default:
			// Packets for our namespace can't precede the connect packet, skip.
			continue
		}
	}
}

func (c *wsConn) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.terminate(err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pingInterval + c.pingTimeout))

		typ, payload, err := sioproto.EngineFrame(frame)
		if err != nil {
			log.Debug().Err(err).Msg("skip malformed engine frame")
			continue
		}
		switch typ {
		case sioproto.EnginePing:
			if err := c.writeFrame(conn, append([]byte{byte(sioproto.EnginePong)}, payload...)); err != nil {
				c.terminate(err)
				return
			}
		case sioproto.EngineClose:
			c.terminate(ErrServerDisconnect)
			return
		case sioproto.EngineMessage:
			if stop := c.handlePacket(conn, payload); stop {
				return
			}
		}
	}
}

// handlePacket returns true when the connection was terminated.
func (c *wsConn) handlePacket(conn *websocket.Conn, payload []byte) bool {
	p, err := sioproto.DecodePacket(payload)
	if err != nil {
		log.Debug().Err(err).Msg("skip malformed packet")
		return false
	}
	if p.Namespace != c.opts.Namespace {
		return false
	}
	switch p.Type {
	case sioproto.PacketEvent:
		name, args, err := sioproto.DecodeEvent(p.Data)
		if err != nil {
			log.Debug().Err(err).Msg("skip malformed event")
			return false
		}
		if c.isClosed() {
			return true
		}
		c.handler.OnEvent(name, args)
		if p.HasID {
			// Server-side emitWithAck: the client has nothing to answer but an empty ack
			// keeps the server callback from hanging until its timeout.
			ack, _ := sioproto.AckPacket(c.opts.Namespace, p.ID)
			if err := c.writePacket(conn, ack); err != nil {
				c.terminate(err)
				return true
			}
		}
	case sioproto.PacketAck:
		args, err := sioproto.DecodeAck(p.Data)
		c.mu.Lock()
		fn, ok := c.acks[p.ID]
		delete(c.acks, p.ID)
		c.mu.Unlock()
		if !ok {
			log.Debug().Uint64("id", p.ID).Msg("ack for unknown or settled request")
			return false
		}
		fn(args, err)
	case sioproto.PacketDisconnect:
		c.terminate(ErrServerDisconnect)
		return true
	case sioproto.PacketConnectError:
		message := sioproto.DecodeConnectError(p.Data)
		c.terminate(&ConnectError{Message: message, Permanent: permanentConnectMessage(message)})
		return true
	}
	return false
}

func (c *wsConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// terminate tears the session down after a failure and reports it to the handler,
// unless Close was called before.
func (c *wsConn) terminate(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	opened := c.opened
	conn := c.conn
	acks := c.acks
	c.acks = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	failAcks(acks)
	if opened {
		c.handler.OnClose(err)
	} else {
		c.handler.OnConnectError(err)
	}
}

// Close the session. The handler is not notified.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	opened := c.opened
	conn := c.conn
	acks := c.acks
	c.acks = nil
	c.mu.Unlock()

	c.cancel()
	failAcks(acks)
	if conn == nil {
		return nil
	}
	if opened {
		if p, err := sioproto.Encode(sioproto.Packet{Type: sioproto.PacketDisconnect, Namespace: c.opts.Namespace}); err == nil {
			_ = c.writeFrame(conn, p)
		}
	}
	return conn.Close()
}

func failAcks(acks map[uint64]AckFunc) {
	for _, fn := range acks {
		fn(nil, ErrClosed)
	}
}

func (c *wsConn) openConn() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if !c.opened {
		return nil, ErrNotOpen
	}
	return c.conn, nil
}

// Emit ...
func (c *wsConn) Emit(event string, payload any) error {
	conn, err := c.openConn()
	if err != nil {
		return err
	}
	p, err := sioproto.EventPacket(c.opts.Namespace, event, 0, false, payload)
	if err != nil {
		return err
	}
	return c.writePacket(conn, p)
}

// EmitWithAck ...
func (c *wsConn) EmitWithAck(event string, payload any, ack AckFunc) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.opened {
		c.mu.Unlock()
		return ErrNotOpen
	}
	conn := c.conn
	id := c.nextID
	c.nextID++
	c.acks[id] = ack
	c.mu.Unlock()

	p, err := sioproto.EventPacket(c.opts.Namespace, event, id, true, payload)
	if err == nil {
		err = c.writePacket(conn, p)
	}
	if err != nil {
		c.mu.Lock()
		if c.acks != nil {
			delete(c.acks, id)
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *wsConn) writePacket(conn *websocket.Conn, p sioproto.Packet) error {
	frame, err := sioproto.Encode(p)
	if err != nil {
		return err
	}
	return c.writeFrame(conn, frame)
}

func (c *wsConn) writeFrame(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrClosed
		}
		return fmt.Errorf("write frame: %w", err)
	}
	if c.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	return nil
}

// PayloadOf is a helper for handlers decoding the first event argument.
func PayloadOf(args []json.RawMessage, v any) error {
	if len(args) == 0 {
		return errors.New("event without payload")
	}
	return json.Unmarshal(args[0], v)
}
