package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/snapcircle/dmsocket/internal/transport"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	event   string
	payload json.RawMessage
	ack     transport.AckFunc
}

type fakeConn struct {
	opts     transport.Options
	h        transport.Handler
	openedAt time.Time

	mu     sync.Mutex
	emits  []emitted
	closed bool
}

func (c *fakeConn) Emit(event string, payload any) error {
	return c.record(event, payload, nil)
}

func (c *fakeConn) EmitWithAck(event string, payload any, ack transport.AckFunc) error {
	return c.record(event, payload, ack)
}

func (c *fakeConn) record(event string, payload any, ack transport.AckFunc) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	c.emits = append(c.emits, emitted{event: event, payload: data, ack: ack})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	emits := c.emits
	c.mu.Unlock()
	for _, e := range emits {
		if e.ack != nil {
			e.ack(nil, transport.ErrClosed)
		}
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) emitted(event string) []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res []emitted
	for _, e := range c.emits {
		if e.event == event {
			res = append(res, e)
		}
	}
	return res
}

func (c *fakeConn) emitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.emits)
}

// Server side helpers, called from tests.

func (c *fakeConn) open()                  { c.h.OnOpen() }
func (c *fakeConn) drop(err error)         { c.h.OnClose(err) }
func (c *fakeConn) connectError(err error) { c.h.OnConnectError(err) }
func (c *fakeConn) push(event string, payload string) {
	c.h.OnEvent(event, []json.RawMessage{json.RawMessage(payload)})
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Open(opts transport.Options, h transport.Handler) transport.Conn {
	c := &fakeConn{opts: opts, h: h, openedAt: time.Now()}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func waitDials(t *testing.T, d *fakeDialer, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return d.count() >= n }, 2*time.Second, time.Millisecond)
	require.Equal(t, n, d.count())
}

func waitEmit(t *testing.T, c *fakeConn, event string, n int) []emitted {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.emitted(event)) >= n }, 2*time.Second, time.Millisecond)
	return c.emitted(event)
}

type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder[T]) get() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeDialer) {
	t.Helper()
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = time.Hour
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/chat"
	}
	d := &fakeDialer{}
	m := NewManager(d, cfg)
	t.Cleanup(m.Disconnect)
	return m, d
}

func connected(t *testing.T, m *Manager, d *fakeDialer) *fakeConn {
	t.Helper()
	m.Connect(42, "tok")
	c := d.last()
	c.open()
	require.Equal(t, StateConnected, m.State())
	return c
}
