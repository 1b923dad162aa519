package metrics

import (
	"strconv"
	"time"
)

// Connect result label values.
const (
	ResultOpen      = "open"
	ResultError     = "error"
	ResultPermanent = "permanent"
)

// Reconnect outcome label values.
const (
	OutcomeScheduled = "scheduled"
	OutcomeExhausted = "exhausted"
)

var stateLabels = []string{"disconnected", "connecting", "connected"}

// IncConnectAttempt counts a finished connect attempt.
func (m *Registry) IncConnectAttempt(result string) {
	if m == nil {
		return
	}
	m.connectAttemptsTotal.WithLabelValues(result).Inc()
}

// IncReconnect counts a reconnect policy decision.
func (m *Registry) IncReconnect(outcome string) {
	if m == nil {
		return
	}
	m.reconnectsScheduled.WithLabelValues(outcome).Inc()
}

// SetState sets gauge of the given state label to 1 and the others to 0.
func (m *Registry) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range stateLabels {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

// IncFeedEvent counts an event published on a feed.
func (m *Registry) IncFeedEvent(feed string) {
	if m == nil {
		return
	}
	m.inboundEventsTotal.WithLabelValues(feed).Inc()
}

// IncSubscriberPanic counts a recovered subscriber panic.
func (m *Registry) IncSubscriberPanic(feed string) {
	if m == nil {
		return
	}
	m.subscriberPanicsTotal.WithLabelValues(feed).Inc()
}

// IncEmit counts an outbound wire event.
func (m *Registry) IncEmit(event string) {
	if m == nil {
		return
	}
	m.outboundEmitsTotal.WithLabelValues(event).Inc()
}

// ObserveAck observes the duration of an acknowledged operation.
func (m *Registry) ObserveAck(started time.Time, op string) {
	if m == nil {
		return
	}
	m.ackDurationHistogram.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// IncAckError counts a failed acknowledged operation.
func (m *Registry) IncAckError(op string, reason string) {
	if m == nil {
		return
	}
	m.ackErrorsTotal.WithLabelValues(op, reason).Inc()
}

// IncRESTRequest counts a REST API request by HTTP status code, 0 means no response.
func (m *Registry) IncRESTRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	m.restRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}
