package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func getConfig(t *testing.T, configFile string) (Config, Meta) {
	t.Helper()
	conf, meta, err := GetConfig(nil, configFile)
	require.NoError(t, err)
	return conf, meta
}

func checkConfig(t *testing.T, conf Config) {
	t.Helper()
	require.Equal(t, "https://example.com/api/v1", conf.API.BaseURL)
	require.Equal(t, 5*time.Second, conf.API.Timeout.ToDuration())
	require.Equal(t, "/dm", conf.Socket.Namespace)
	require.Equal(t, 2*time.Second, conf.Socket.AckTimeout.ToDuration())
	require.Equal(t, 3, conf.Reconnect.MaxAttempts)
	require.Equal(t, 1500*time.Millisecond, conf.Reconnect.BaseDelay.ToDuration())
	require.Equal(t, int64(42), conf.Auth.UserID)
	require.Equal(t, "Bearer abc", conf.Auth.Token)
	require.Equal(t, "debug", conf.Log.Level)
	// Defaults for keys missing in file.
	require.Equal(t, 3*time.Second, conf.Typing.QuietPeriod.ToDuration())
	require.Equal(t, "/socket.io/", conf.Socket.Path)
	require.Equal(t, "sub", conf.Auth.UserIDClaim)
	require.NoError(t, conf.Validate())

	u, err := conf.SocketURL()
	require.NoError(t, err)
	require.Equal(t, "wss://example.com/socket.io/?EIO=4&transport=websocket", u)
}

func TestConfigJSON(t *testing.T) {
	conf, meta := getConfig(t, "testdata/config.json")
	checkConfig(t, conf)
	require.Len(t, meta.UnknownKeys, 0)
	require.Len(t, meta.UnknownEnvs, 0)
	require.False(t, meta.FileNotFound)
}

func TestConfigYAML(t *testing.T) {
	conf, _ := getConfig(t, "testdata/config.yaml")
	checkConfig(t, conf)
}

func TestConfigTOML(t *testing.T) {
	conf, _ := getConfig(t, "testdata/config.toml")
	checkConfig(t, conf)
}

func TestConfigDefaults(t *testing.T) {
	conf, meta := getConfig(t, "")
	require.Equal(t, DefaultConfig(), conf)
	require.NoError(t, conf.Validate())
	require.Contains(t, meta.KnownEnvVars, "DMSOCKET_AUTH_TOKEN")
	require.Contains(t, meta.KnownEnvVars, "DMSOCKET_RECONNECT_BASE_DELAY")

	u, err := conf.SocketURL()
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:3000/socket.io/?EIO=4&transport=websocket", u)
}

func TestConfigFileNotFound(t *testing.T) {
	_, meta := getConfig(t, "testdata/missing.json")
	require.True(t, meta.FileNotFound)
}

func TestConfigUnknownKeys(t *testing.T) {
	_, meta := getConfig(t, "testdata/unknown.json")
	require.Equal(t, []string{"api.retries", "telemetry"}, meta.UnknownKeys)
}

func TestConfigEnvVars(t *testing.T) {
	t.Setenv("DMSOCKET_AUTH_USER_ID", "43")
	t.Setenv("DMSOCKET_RECONNECT_BASE_DELAY", "2s")
	t.Setenv("DMSOCKET_TYPING_QUIET_PERIOD", "500")
	t.Setenv("DMSOCKET_SOCKET_URL", "wss://rt.example.com/socket.io/?EIO=4&transport=websocket")
	t.Setenv("DMSOCKET_UNKNOWN_ENV", "1")

	conf, meta := getConfig(t, "testdata/config.json")
	require.Equal(t, int64(43), conf.Auth.UserID)
	require.Equal(t, 2*time.Second, conf.Reconnect.BaseDelay.ToDuration())
	require.Equal(t, 500*time.Millisecond, conf.Typing.QuietPeriod.ToDuration())
	require.Equal(t, []string{"DMSOCKET_UNKNOWN_ENV"}, meta.UnknownEnvs)
	require.Len(t, meta.UnknownKeys, 0)

	u, err := conf.SocketURL()
	require.NoError(t, err)
	require.Equal(t, "wss://rt.example.com/socket.io/?EIO=4&transport=websocket", u)
}

func TestConfigFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	DefineFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--auth.user_id=7", "-t", "flagtoken", "--log.level=warn"}))

	conf, _, err := GetConfig(cmd, "testdata/config.json")
	require.NoError(t, err)
	require.Equal(t, int64(7), conf.Auth.UserID)
	require.Equal(t, "flagtoken", conf.Auth.Token)
	require.Equal(t, "warn", conf.Log.Level)
	// Not passed flags do not override file values.
	require.Equal(t, "/dm", conf.Socket.Namespace)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"bad scheme", func(c *Config) { c.API.BaseURL = "ftp://example.com" }},
		{"namespace", func(c *Config) { c.Socket.Namespace = "chat" }},
		{"ack timeout", func(c *Config) { c.Socket.AckTimeout = 0 }},
		{"max attempts", func(c *Config) { c.Reconnect.MaxAttempts = 0 }},
		{"base delay", func(c *Config) { c.Reconnect.BaseDelay = -1 }},
		{"quiet period", func(c *Config) { c.Typing.QuietPeriod = 0 }},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"prometheus", func(c *Config) { c.Prometheus.Enabled = true; c.Prometheus.Address = "" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.modify(&c)
			require.Error(t, c.Validate())
		})
	}
}
