package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/snapcircle/dmsocket/internal/configtypes"
	"github.com/snapcircle/dmsocket/internal/logutils"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var logLevelMatches = map[string]zerolog.Level{
	"NONE":  zerolog.Disabled,
	"TRACE": zerolog.TraceLevel,
	"DEBUG": zerolog.DebugLevel,
	"INFO":  zerolog.InfoLevel,
	"WARN":  zerolog.WarnLevel,
	"ERROR": zerolog.ErrorLevel,
	"FATAL": zerolog.FatalLevel,
}

// ParseLevel returns zerolog level for a config level name, info for unknown names.
func ParseLevel(level string) zerolog.Level {
	if l, ok := logLevelMatches[strings.ToUpper(level)]; ok {
		return l
	}
	return zerolog.InfoLevel
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:                 out,
		TimeFormat:          "2006-01-02 15:04:05",
		FormatLevel:         logutils.ConsoleFormatLevel(),
		FormatFieldName:     logutils.ConsoleFormatFieldName(),
		FormatErrFieldName:  logutils.ConsoleFormatErrFieldName(),
		FormatErrFieldValue: logutils.ConsoleFormatErrFieldValue(),
	}
}

func isTerminalAttached() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) && runtime.GOOS != "windows"
}

// Setup configures the global zerolog logger. The returned function closes the
// log file, it is nil when logging to stdout.
func Setup(cfg configtypes.Log) (func(), error) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
		log.Logger = zerolog.New(f).With().Timestamp().Logger()
		return func() {
			_ = f.Close()
		}, nil
	}
	if isTerminalAttached() {
		log.Logger = log.Output(consoleWriter(os.Stdout))
	}
	return nil, nil
}

// Enabled checks if a specific logging level is enabled
func Enabled(level zerolog.Level) bool {
	return level >= zerolog.GlobalLevel()
}
