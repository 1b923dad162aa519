// Package logutils contains zerolog console formatters.
package logutils

import (
	"fmt"

	"github.com/rs/zerolog"
)

const (
	colorRed = iota + 31
	colorGreen
	colorYellow
	colorBlue
	colorMagenta
	colorCyan

	colorBold     = 1
	colorDarkGray = 90
)

func colorize(s interface{}, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

// ConsoleFormatLevel returns a colorizer for zerolog console level output.
func ConsoleFormatLevel() zerolog.Formatter {
	return func(i interface{}) string {
		ll, _ := i.(string)
		switch ll {
		case "trace":
			return colorize("TRC", colorBlue)
		case "debug":
			return colorize("DBG", colorMagenta)
		case "info":
			return colorize("INF", colorGreen)
		case "warn":
			return colorize("WRN", colorYellow)
		case "error":
			return colorize("ERR", colorRed)
		case "fatal":
			return colorize(colorize("FTL", colorRed), colorBold)
		default:
			return colorize("???", colorBold)
		}
	}
}

// ConsoleFormatFieldName dims field names so event fields stand out.
func ConsoleFormatFieldName() zerolog.Formatter {
	return func(i interface{}) string {
		return colorize(fmt.Sprintf("%s=", i), colorDarkGray)
	}
}

// ConsoleFormatErrFieldName returns formatter for error field name.
func ConsoleFormatErrFieldName() zerolog.Formatter {
	return func(i interface{}) string {
		return colorize(fmt.Sprintf("%s=", i), colorRed)
	}
}

// ConsoleFormatErrFieldValue returns formatter for error value.
func ConsoleFormatErrFieldValue() zerolog.Formatter {
	return func(i interface{}) string {
		return colorize(fmt.Sprintf("%s", i), colorCyan)
	}
}
