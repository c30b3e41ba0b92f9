// Package rlog provides the engine's structured logger. The teacher's
// utils.go colors an interactive REPL's stdout by hand; this engine is a
// library, so the same "readable on a terminal, quiet off one" intent is
// carried by zerolog's console writer instead.
package rlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger writing to w. When w is a terminal, output
// is colorized and human-readable; otherwise it falls back to structured
// JSON, matching zerolog's own recommended split between interactive and
// production output.
func New(w io.Writer) zerolog.Logger {
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Default is the package-level logger used by components that are not
// handed an explicit logger via session.Config.
var Default = New(os.Stderr)

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
