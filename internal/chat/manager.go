// Package chat implements the connection manager backing direct messaging: one
// shared Socket.IO connection, typed event feeds, reconnection with linear
// backoff, acknowledged send and mark-as-read, debounced typing signals.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/snapcircle/dmsocket/internal/credential"
	"github.com/snapcircle/dmsocket/internal/feed"
	"github.com/snapcircle/dmsocket/internal/metrics"
	"github.com/snapcircle/dmsocket/internal/reconnect"
	"github.com/snapcircle/dmsocket/internal/timers"
	"github.com/snapcircle/dmsocket/internal/transport"
	"github.com/snapcircle/dmsocket/internal/typing"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"
)

// DefaultAckTimeout bounds waiting for a server acknowledgement.
const DefaultAckTimeout = 10 * time.Second

// Wire event names.
const (
	eventSendMessage  = "sendMessage"
	eventMarkAsRead   = "markAsRead"
	eventTyping       = "typing"
	eventNewMessage   = "newMessage"
	eventMessagesRead = "messagesRead"
	eventUserTyping   = "userTyping"
	eventError        = "error"
)

// Config of Manager.
type Config struct {
	// URL is the websocket endpoint, see transport.SocketURL.
	URL string
	// Namespace to join.
	Namespace string
	// Header is added to the websocket upgrade request.
	Header http.Header
	// HandshakeTimeout bounds dialing plus namespace connect.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds every frame write.
	WriteTimeout time.Duration
	// AckTimeout bounds waiting for acknowledgements, DefaultAckTimeout when zero.
	AckTimeout time.Duration
	// MaxReconnectAttempts after an unplanned disconnect.
	MaxReconnectAttempts int
	// ReconnectBaseDelay, the k-th retry waits ReconnectBaseDelay*k.
	ReconnectBaseDelay time.Duration
	// TypingQuietPeriod after which typing=false is sent automatically.
	TypingQuietPeriod time.Duration
	// UserIDClaim is a path of the JWT claim holding the user id. Only used to
	// warn about credentials not matching the identity.
	UserIDClaim string
	// Metrics may be nil.
	Metrics *metrics.Registry
}

// Manager owns the single connection to the messaging server. Construct one per
// process and share it. All methods are safe for concurrent use.
type Manager struct {
	config  Config
	dialer  transport.Dialer
	metrics *metrics.Registry
	policy  *reconnect.Policy
	typing  *typing.Tracker

	newMessage   *feed.Feed[Message]
	readReceipt  *feed.Feed[ReadReceipt]
	typingStatus *feed.Feed[TypingStatus]
	errorEvents  *feed.Feed[ErrorEvent]
	status       *feed.StateFeed[bool]

	mu    sync.Mutex
	state State
	conn  transport.Conn
	// gen identifies the current transport. Handlers of detached transports
	// carry an older generation and are ignored.
	gen         uint64
	userID      int64
	token       string
	hasIdentity bool
}

// NewManager creates Manager. Nothing is dialed until Connect.
func NewManager(dialer transport.Dialer, cfg Config) *Manager {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	m := &Manager{
		config:  cfg,
		dialer:  dialer,
		metrics: cfg.Metrics,
		policy:  reconnect.New(cfg.MaxReconnectAttempts, cfg.ReconnectBaseDelay),
	}
	onPanic := func(kind feed.Kind, _ any) {
		m.metrics.IncSubscriberPanic(kind.String())
	}
	m.newMessage = feed.New[Message](feed.KindNewMessage, onPanic)
	m.readReceipt = feed.New[ReadReceipt](feed.KindReadReceipt, onPanic)
	m.typingStatus = feed.New[TypingStatus](feed.KindTypingStatus, onPanic)
	m.errorEvents = feed.New[ErrorEvent](feed.KindError, onPanic)
	m.status = feed.NewState[bool](feed.KindConnectionStatus, false, onPanic)
	m.typing = typing.NewTracker(cfg.TypingQuietPeriod, func(peerID int64) {
		m.SendTypingStatus(peerID, false)
	})
	m.metrics.SetState(StateDisconnected.String())
	return m
}

// OnNewMessage subscribes to inbound messages.
func (m *Manager) OnNewMessage(fn func(Message)) (unsubscribe func()) {
	return m.newMessage.Subscribe(fn)
}

// OnReadReceipt subscribes to read receipts.
func (m *Manager) OnReadReceipt(fn func(ReadReceipt)) (unsubscribe func()) {
	return m.readReceipt.Subscribe(fn)
}

// OnTypingStatus subscribes to peers' typing status.
func (m *Manager) OnTypingStatus(fn func(TypingStatus)) (unsubscribe func()) {
	return m.typingStatus.Subscribe(fn)
}

// OnError subscribes to connection and server errors.
func (m *Manager) OnError(fn func(ErrorEvent)) (unsubscribe func()) {
	return m.errorEvents.Subscribe(fn)
}

// OnConnectionStatus subscribes to connectivity changes. fn is called with the
// current status before OnConnectionStatus returns.
func (m *Manager) OnConnectionStatus(fn func(connected bool)) (unsubscribe func()) {
	return m.status.Subscribe(fn)
}

// State returns the connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the connection is open.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// UserID returns the identity of the last Connect, false after Disconnect.
func (m *Manager) UserID() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID, m.hasIdentity
}

// ReconnectAttempts returns the number of retries since the last successful connect.
func (m *Manager) ReconnectAttempts() int {
	return m.policy.Attempts()
}

// Connect opens the connection for the identity. It is a no-op when already
// connected or connecting with the same identity and token. Otherwise the current
// connection is torn down first. The outcome is reported on the connection status
// and error feeds.
func (m *Manager) Connect(userID int64, token string) {
	token = credential.Strip(token)

	m.mu.Lock()
	if m.hasIdentity && m.userID == userID && m.token == token && m.state != StateDisconnected {
		state := m.state
		m.mu.Unlock()
		log.Debug().Int64("user", userID).Str("state", state.String()).Msg("connect skipped")
		return
	}
	old, wasConnected := m.detachLocked()
	// Identity is restored below, clearing it keeps a pending retry from dialing
	// with the previous one meanwhile.
	m.hasIdentity = false
	m.policy.Reset()
	gen := m.gen
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
		if wasConnected {
			m.publishStatus(false)
		}
	}

	m.mu.Lock()
	if m.gen != gen {
		// Concurrent Connect or Disconnect took over.
		m.mu.Unlock()
		return
	}
	m.userID, m.token, m.hasIdentity = userID, token, true
	m.dialLocked()
	m.mu.Unlock()

	m.inspectCredential(userID, token)
}

// Disconnect closes the connection, cancels pending reconnects and typing timers
// and forgets the identity. It is safe to call many times.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	old, _ := m.detachLocked()
	m.userID, m.token, m.hasIdentity = 0, "", false
	m.policy.Reset()
	m.mu.Unlock()

	m.typing.CancelAll()
	if old != nil {
		_ = old.Close()
		log.Info().Msg("disconnected")
	}
	m.publishStatus(false)
}

// detachLocked invalidates the current transport. The returned connection must be
// closed by the caller outside of mu.
func (m *Manager) detachLocked() (transport.Conn, bool) {
	old := m.conn
	wasConnected := m.state == StateConnected
	m.conn = nil
	m.gen++
	m.setStateLocked(StateDisconnected)
	return old, wasConnected
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	m.metrics.SetState(s.String())
}

// dialLocked opens a new transport for the remembered identity.
func (m *Manager) dialLocked() {
	m.gen++
	m.setStateLocked(StateConnecting)
	h := &connHandler{m: m, gen: m.gen}
	m.conn = m.dialer.Open(transport.Options{
		URL:              m.config.URL,
		Namespace:        m.config.Namespace,
		Auth:             authPayload{Token: m.token, UserID: m.userID},
		Header:           m.config.Header,
		HandshakeTimeout: m.config.HandshakeTimeout,
		WriteTimeout:     m.config.WriteTimeout,
	}, h)
	log.Debug().Int64("user", m.userID).Str("url", m.config.URL).Msg("connecting")
}

func (m *Manager) inspectCredential(userID int64, token string) {
	claims, err := credential.Inspect(token, m.config.UserIDClaim)
	if err != nil {
		log.Debug().Err(err).Msg("credential is not an inspectable JWT")
		return
	}
	if claims.Expired(time.Now()) {
		log.Warn().Time("expires_at", claims.ExpiresAt).Msg("connecting with expired token")
	}
	if claims.HasUserID && claims.UserID != userID {
		log.Warn().Int64("user", userID).Int64("token_user", claims.UserID).Msg("token issued for another user")
	}
}

// retry is called by the reconnect policy. It keeps the attempt counter.
func (m *Manager) retry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasIdentity || m.state != StateDisconnected {
		return
	}
	log.Info().Int64("user", m.userID).Int("attempt", m.policy.Attempts()).Msg("reconnecting")
	m.dialLocked()
}

func (m *Manager) scheduleRetry() {
	delay, ok := m.policy.Schedule(m.retry)
	if !ok {
		m.metrics.IncReconnect(metrics.OutcomeExhausted)
		log.Info().Int("max_attempts", m.policy.MaxAttempts()).Msg("reconnect attempts exhausted")
		return
	}
	m.metrics.IncReconnect(metrics.OutcomeScheduled)
	log.Debug().Str("delay", delay.String()).Int("attempt", m.policy.Attempts()).Msg("reconnect scheduled")
}

func (m *Manager) publishStatus(connected bool) {
	m.status.Publish(connected)
	m.metrics.IncFeedEvent(feed.KindConnectionStatus.String())
}

func (m *Manager) publishError(e ErrorEvent) {
	m.errorEvents.Publish(e)
	m.metrics.IncFeedEvent(feed.KindError.String())
}

// acquire returns the open transport. Without one it starts a single reconnect
// for a known identity unless one is already in progress.
func (m *Manager) acquire() (transport.Conn, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateConnected && m.conn != nil {
		return m.conn, m.userID, nil
	}
	if !m.hasIdentity {
		return nil, 0, ErrNotConnected
	}
	if m.state == StateDisconnected {
		m.dialLocked()
	}
	return nil, 0, ErrReconnecting
}

// SendMessage sends a message and waits for the server to acknowledge it. Without
// a connection it fails immediately without touching the wire.
func (m *Manager) SendMessage(ctx context.Context, req SendRequest) (Message, error) {
	conn, userID, err := m.acquire()
	if err != nil {
		return Message{}, err
	}
	payload := sendMessagePayload{
		ReceiverID: req.ReceiverID,
		SenderID:   userID,
		ImageURL:   req.ImageURL,
	}
	if req.Content != "" {
		content := req.Content
		payload.Content = &content
	}
	wait, err := m.emitWithAck(conn, opSendMessage, eventSendMessage, payload)
	// Sending implies the user stopped typing, whether or not the emit went out.
	m.SendTypingStatus(req.ReceiverID, false)
	if err != nil {
		return Message{}, err
	}

	res, err := wait(ctx)
	if err != nil {
		return Message{}, err
	}
	if !res.OK {
		m.metrics.IncAckError(opSendMessage, "server")
		return Message{}, serverError(opSendMessage, res.Message, "failed to send message")
	}
	var msg Message
	if len(res.Data) == 0 {
		m.metrics.IncAckError(opSendMessage, "malformed")
		return Message{}, fmt.Errorf("%s: %w: no message data", opSendMessage, ErrMalformedAck)
	}
	if err := json.Unmarshal(res.Data, &msg); err != nil {
		m.metrics.IncAckError(opSendMessage, "malformed")
		return Message{}, fmt.Errorf("%s: %w: %v", opSendMessage, ErrMalformedAck, err)
	}
	if msg.ID == "" {
		m.metrics.IncAckError(opSendMessage, "malformed")
		return Message{}, fmt.Errorf("%s: %w: message without id", opSendMessage, ErrMalformedAck)
	}
	return msg, nil
}

// MarkAsRead marks messages from senderID as read by the current identity.
func (m *Manager) MarkAsRead(ctx context.Context, senderID int64) error {
	conn, userID, err := m.acquire()
	if err != nil {
		return err
	}
	wait, err := m.emitWithAck(conn, opMarkAsRead, eventMarkAsRead, markAsReadPayload{
		SenderID: senderID,
		ReaderID: userID,
	})
	if err != nil {
		return err
	}
	res, err := wait(ctx)
	if err != nil {
		return err
	}
	if !res.OK {
		m.metrics.IncAckError(opMarkAsRead, "server")
		return serverError(opMarkAsRead, res.Message, "failed to mark messages as read")
	}
	return nil
}

func serverError(op string, message string, fallback string) error {
	if message == "" {
		message = fallback
	}
	return &ServerError{Op: op, Message: message}
}

type ackReply struct {
	args []json.RawMessage
	err  error
}

// emitWithAck writes the event and returns a function waiting for its decoded
// acknowledgement.
func (m *Manager) emitWithAck(conn transport.Conn, op string, event string, payload any) (func(context.Context) (ackResult, error), error) {
	replies := make(chan ackReply, 1)
	err := conn.EmitWithAck(event, payload, func(args []json.RawMessage, err error) {
		select {
		case replies <- ackReply{args: args, err: err}:
		default:
			// Already answered, late duplicates are dropped.
		}
	})
	if err != nil {
		m.metrics.IncAckError(op, "emit")
		if errors.Is(err, transport.ErrClosed) || errors.Is(err, transport.ErrNotOpen) {
			return nil, fmt.Errorf("%s: %w", op, ErrConnectionLost)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.metrics.IncEmit(event)
	started := time.Now()

	return func(ctx context.Context) (ackResult, error) {
		tm := timers.AcquireTimer(m.config.AckTimeout)
		defer timers.ReleaseTimer(tm)
		select {
		case reply := <-replies:
			m.metrics.ObserveAck(started, op)
			if reply.err != nil {
				m.metrics.IncAckError(op, "connection_lost")
				return ackResult{}, fmt.Errorf("%s: %w", op, ErrConnectionLost)
			}
			res, err := decodeAck(op, reply.args)
			if err != nil {
				m.metrics.IncAckError(op, "malformed")
				return ackResult{}, fmt.Errorf("%s: %w", op, err)
			}
			return res, nil
		case <-tm.C:
			m.metrics.IncAckError(op, "timeout")
			return ackResult{}, fmt.Errorf("%s: %w", op, ErrAckTimeout)
		case <-ctx.Done():
			m.metrics.IncAckError(op, "canceled")
			return ackResult{}, ctx.Err()
		}
	}, nil
}

// SendTypingStatus tells the peer whether the user is typing. It is best effort:
// without a connection nothing happens. isTyping=true sends typing=false
// automatically once the quiet period passes without another call.
func (m *Manager) SendTypingStatus(peerID int64, isTyping bool) {
	m.mu.Lock()
	var conn transport.Conn
	if m.state == StateConnected {
		conn = m.conn
	}
	m.mu.Unlock()
	if !isTyping {
		m.typing.Cancel(peerID)
	}
	if conn == nil {
		log.Debug().Int64("peer", peerID).Bool("typing", isTyping).Msg("typing status dropped, not connected")
		return
	}
	if isTyping {
		m.typing.Arm(peerID)
	}
	if err := conn.Emit(eventTyping, typingPayload{ReceiverID: peerID, IsTyping: isTyping}); err != nil {
		log.Debug().Err(err).Int64("peer", peerID).Msg("error sending typing status")
		return
	}
	m.metrics.IncEmit(eventTyping)
}

// connHandler binds transport callbacks to the generation they were opened for.
type connHandler struct {
	m   *Manager
	gen uint64
}

func (h *connHandler) OnOpen()                  { h.m.handleOpen(h.gen) }
func (h *connHandler) OnClose(err error)        { h.m.handleClose(h.gen, err) }
func (h *connHandler) OnConnectError(err error) { h.m.handleConnectError(h.gen, err) }
func (h *connHandler) OnEvent(name string, args []json.RawMessage) {
	h.m.handleEvent(h.gen, name, args)
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen && m.conn != nil
}

func (m *Manager) handleOpen(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.conn == nil {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnected)
	m.policy.Reset()
	userID := m.userID
	m.mu.Unlock()

	m.metrics.IncConnectAttempt(metrics.ResultOpen)
	log.Info().Int64("user", userID).Msg("connected")
	m.publishStatus(true)
}

// lostLocked handles a transport which ended on its own.
func (m *Manager) lostLocked(gen uint64) bool {
	if m.gen != gen || m.conn == nil {
		return false
	}
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	return true
}

func (m *Manager) handleClose(gen uint64, err error) {
	m.mu.Lock()
	if !m.lostLocked(gen) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.typing.CancelAll()
	log.Info().Err(err).Msg("connection closed")
	m.publishStatus(false)
	if err != nil {
		m.publishError(ErrorEvent{Kind: ErrorKindTransport, Message: err.Error(), Err: err})
	}
	m.scheduleRetry()
}

func (m *Manager) handleConnectError(gen uint64, err error) {
	m.mu.Lock()
	if !m.lostLocked(gen) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	permanent := transport.IsPermanent(err)
	kind := ErrorKindTransport
	if permanent {
		kind = ErrorKindConfiguration
		m.metrics.IncConnectAttempt(metrics.ResultPermanent)
		log.Error().Err(err).Msg("connect failed, not retrying")
	} else {
		m.metrics.IncConnectAttempt(metrics.ResultError)
		log.Warn().Err(err).Msg("connect failed")
	}
	m.publishStatus(false)
	m.publishError(ErrorEvent{Kind: kind, Message: err.Error(), Permanent: permanent, Err: err})
	if !permanent {
		m.scheduleRetry()
	}
}

func (m *Manager) handleEvent(gen uint64, name string, args []json.RawMessage) {
	if !m.current(gen) {
		return
	}
	switch name {
	case eventNewMessage:
		var msg Message
		if err := transport.PayloadOf(args, &msg); err != nil {
			log.Warn().Err(err).Str("event", name).Msg("error decoding event")
			return
		}
		m.newMessage.Publish(msg)
		m.metrics.IncFeedEvent(feed.KindNewMessage.String())
	case eventMessagesRead:
		var receipt ReadReceipt
		if err := transport.PayloadOf(args, &receipt); err != nil {
			log.Warn().Err(err).Str("event", name).Msg("error decoding event")
			return
		}
		m.readReceipt.Publish(receipt)
		m.metrics.IncFeedEvent(feed.KindReadReceipt.String())
	case eventUserTyping:
		var status TypingStatus
		if err := transport.PayloadOf(args, &status); err != nil {
			log.Warn().Err(err).Str("event", name).Msg("error decoding event")
			return
		}
		m.typingStatus.Publish(status)
		m.metrics.IncFeedEvent(feed.KindTypingStatus.String())
	case eventError:
		m.publishError(ErrorEvent{Kind: ErrorKindServer, Message: serverErrorMessage(args)})
	default:
		log.Debug().Str("event", name).Msg("unhandled event")
	}
}

// serverErrorMessage extracts a message from an error event which may carry a
// plain string or an object with a message field.
func serverErrorMessage(args []json.RawMessage) string {
	if len(args) == 0 {
		return "server error"
	}
	res := gjson.ParseBytes(args[0])
	switch {
	case res.Type == gjson.String:
		return res.Str
	case res.Get("message").Exists():
		return res.Get("message").String()
	case res.Get("error").Exists():
		return res.Get("error").String()
	}
	return string(args[0])
}
