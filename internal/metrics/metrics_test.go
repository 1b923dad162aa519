package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(Config{Registerer: reg, ConstLabels: map[string]string{"env": "test"}})
	require.NoError(t, err)

	m.IncConnectAttempt(ResultOpen)
	m.IncConnectAttempt(ResultOpen)
	m.IncConnectAttempt(ResultPermanent)
	require.Equal(t, 2.0, testutil.ToFloat64(m.connectAttemptsTotal.WithLabelValues(ResultOpen)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.connectAttemptsTotal.WithLabelValues(ResultPermanent)))

	m.SetState("connecting")
	m.SetState("connected")
	require.Equal(t, 1.0, testutil.ToFloat64(m.connectionState.WithLabelValues("connected")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.connectionState.WithLabelValues("connecting")))

	m.IncAckError("sendMessage", "timeout")
	require.Equal(t, 1.0, testutil.ToFloat64(m.ackErrorsTotal.WithLabelValues("sendMessage", "timeout")))

	m.ObserveAck(time.Now(), "markAsRead")
	require.Equal(t, 1, testutil.CollectAndCount(m.ackDurationHistogram))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		require.Contains(t, f.GetName(), "dmsocket_")
	}
}

func TestRegistryReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(Config{Registerer: reg, Namespace: "x"})
	require.NoError(t, err)
	_, err = New(Config{Registerer: reg, Namespace: "x"})
	require.NoError(t, err)
}

func TestNilRegistry(t *testing.T) {
	var m *Registry
	require.NotPanics(t, func() {
		m.IncConnectAttempt(ResultOpen)
		m.IncReconnect(OutcomeScheduled)
		m.SetState("connected")
		m.IncFeedEvent("newMessage")
		m.IncSubscriberPanic("newMessage")
		m.IncEmit("typing")
		m.ObserveAck(time.Now(), "sendMessage")
		m.IncAckError("sendMessage", "server")
		m.IncRESTRequest("history", 200)
	})
}
