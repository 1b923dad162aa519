// Package configtypes contains types of the dmsocket configuration sections.
package configtypes

// API is the REST API the messaging server exposes. The websocket endpoint is
// derived from its origin.
type API struct {
	// BaseURL of the REST API, e.g. https://example.com/api.
	BaseURL string `mapstructure:"base_url" json:"base_url" toml:"base_url" yaml:"base_url"`
	// Timeout of REST requests.
	Timeout Duration `mapstructure:"timeout" json:"timeout" toml:"timeout" yaml:"timeout"`
}

// Socket configures the real-time connection.
type Socket struct {
	// URL overrides the websocket endpoint derived from api.base_url.
	URL string `mapstructure:"url" json:"url" toml:"url" yaml:"url"`
	// Path of the Socket.IO endpoint on the API host.
	Path string `mapstructure:"path" json:"path" toml:"path" yaml:"path"`
	// Namespace to join after connecting.
	Namespace string `mapstructure:"namespace" json:"namespace" toml:"namespace" yaml:"namespace"`
	// HandshakeTimeout bounds dialing plus namespace connect.
	HandshakeTimeout Duration `mapstructure:"handshake_timeout" json:"handshake_timeout" toml:"handshake_timeout" yaml:"handshake_timeout"`
	// WriteTimeout bounds a single frame write.
	WriteTimeout Duration `mapstructure:"write_timeout" json:"write_timeout" toml:"write_timeout" yaml:"write_timeout"`
	// AckTimeout bounds waiting for server acknowledgements of sendMessage and markAsRead.
	AckTimeout Duration `mapstructure:"ack_timeout" json:"ack_timeout" toml:"ack_timeout" yaml:"ack_timeout"`
}

// Reconnect configures retries after unplanned disconnects.
type Reconnect struct {
	// MaxAttempts before giving up until the next explicit connect.
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" toml:"max_attempts" yaml:"max_attempts"`
	// BaseDelay of linear backoff: the k-th retry waits BaseDelay*k.
	BaseDelay Duration `mapstructure:"base_delay" json:"base_delay" toml:"base_delay" yaml:"base_delay"`
}

// Typing configures typing indicator debounce.
type Typing struct {
	// QuietPeriod after which "not typing" is sent automatically.
	QuietPeriod Duration `mapstructure:"quiet_period" json:"quiet_period" toml:"quiet_period" yaml:"quiet_period"`
}

// Auth is the identity used to connect.
type Auth struct {
	UserID int64  `mapstructure:"user_id" json:"user_id" toml:"user_id" yaml:"user_id"`
	Token  string `mapstructure:"token" json:"token" toml:"token" yaml:"token"`
	// UserIDClaim is a JSON path of the token claim holding the numeric user id.
	UserIDClaim string `mapstructure:"user_id_claim" json:"user_id_claim" toml:"user_id_claim" yaml:"user_id_claim"`
	// HMACSecretKey is used by gentoken and checktoken for development tokens.
	HMACSecretKey string `mapstructure:"hmac_secret_key" json:"hmac_secret_key" toml:"hmac_secret_key" yaml:"hmac_secret_key"`
}

// Log configuration.
type Log struct {
	// Level is a log level: trace, debug, info, warn, error, fatal or none.
	Level string `mapstructure:"level" json:"level" toml:"level" yaml:"level"`
	// File is a path to log file. If not set logs go to stdout.
	File string `mapstructure:"file" json:"file" toml:"file" yaml:"file"`
}

// Prometheus metrics endpoint configuration.
type Prometheus struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled" toml:"enabled" yaml:"enabled"`
	Address       string `mapstructure:"address" json:"address" toml:"address" yaml:"address"`
	HandlerPrefix string `mapstructure:"handler_prefix" json:"handler_prefix" toml:"handler_prefix" yaml:"handler_prefix"`
}
