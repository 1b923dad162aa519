package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snapcircle/dmsocket/internal/configtypes"
	"github.com/snapcircle/dmsocket/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetricsMux(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := metrics.New(metrics.Config{Registerer: registry})
	require.NoError(t, err)
	m.IncConnectAttempt(metrics.ResultOpen)

	server := httptest.NewServer(metricsMux(configtypes.Prometheus{HandlerPrefix: "/metrics"}, registry))
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `dmsocket_connection_connect_attempts_total{result="open"} 1`)

	resp, err = http.Get(server.URL + "/other")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
