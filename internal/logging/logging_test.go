package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snapcircle/dmsocket/internal/configtypes"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("WARN"))
	require.Equal(t, zerolog.Disabled, ParseLevel("none"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestSetupFile(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	defer func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	}()

	path := filepath.Join(t.TempDir(), "dmsocket.log")
	closeFn, err := Setup(configtypes.Log{Level: "warn", File: path})
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	require.True(t, Enabled(zerolog.ErrorLevel))
	require.False(t, Enabled(zerolog.InfoLevel))

	log.Info().Msg("skipped")
	log.Warn().Str("peer", "7").Msg("written")
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(data), "skipped"))
	require.Contains(t, string(data), `"message":"written"`)
}

func TestSetupFileError(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prevLevel)
	_, err := Setup(configtypes.Log{Level: "info", File: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
}

func TestConsoleWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(consoleWriter(&buf))
	logger.Info().Str("peer", "7").Msg("hello")
	require.Contains(t, buf.String(), "hello")
	require.Contains(t, buf.String(), "INF")
}
