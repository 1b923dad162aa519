package config

import (
	"fmt"
	"net/url"
	"strings"
)

var logLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "none"}

// Validate validates config and returns error if problems found
func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("malformed api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must be http or https URL, got %q", c.API.BaseURL)
	}
	if _, err := c.SocketURL(); err != nil {
		return fmt.Errorf("can't build websocket endpoint: %w", err)
	}
	if !strings.HasPrefix(c.Socket.Namespace, "/") {
		return fmt.Errorf("socket.namespace must start with /, got %q", c.Socket.Namespace)
	}
	if c.Socket.AckTimeout <= 0 {
		return fmt.Errorf("socket.ack_timeout must be positive")
	}
	if c.Socket.HandshakeTimeout <= 0 {
		return fmt.Errorf("socket.handshake_timeout must be positive")
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("reconnect.max_attempts must be positive")
	}
	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("reconnect.base_delay must be positive")
	}
	if c.Typing.QuietPeriod <= 0 {
		return fmt.Errorf("typing.quiet_period must be positive")
	}
	if c.Auth.UserID < 0 {
		return fmt.Errorf("auth.user_id must not be negative")
	}
	validLevel := false
	for _, l := range logLevels {
		if strings.EqualFold(c.Log.Level, l) {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	if c.Prometheus.Enabled && c.Prometheus.Address == "" {
		return fmt.Errorf("prometheus.address required when prometheus enabled")
	}
	return nil
}
