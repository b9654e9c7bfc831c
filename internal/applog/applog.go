// Package applog configures the single zerolog.Logger this tool uses,
// following the console-vs-JSON split the teacher's worker/server
// loggers use (cmdline/workercmd/workercmd.go): a human-readable console
// writer when stderr is a terminal, line-delimited JSON otherwise so the
// tool composes cleanly in build pipelines.
package applog

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New builds the process-wide logger. The default level is info, at
// which the CLI reports the start and end of a build; verbose raises the
// level to debug, which adds one line per mapped input.
func New(verbose bool) zerolog.Logger {
	var w io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
