// Package telemetry wires up the zerolog logger used for phase headers
// and verbose diagnostics.
package telemetry

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console-friendly logger. verbose enables debug-level
// output (the target descriptor dump and per-index build messages);
// quiet drops everything below warn.
func New(w io.Writer, verbose, quiet bool) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: false}

	level := zerolog.InfoLevel
	switch {
	case quiet:
		level = zerolog.WarnLevel
	case verbose:
		level = zerolog.DebugLevel
	}

	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}
