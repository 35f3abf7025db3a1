// Package log holds the process-wide zerolog loggers of ticketd.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Component loggers are derived from it and
// rebuilt whenever it changes.
var Logger zerolog.Logger

var (
	Engine  zerolog.Logger
	Storage zerolog.Logger
	RPC     zerolog.Logger
	Node    zerolog.Logger
)

func init() {
	SetOutput(console(os.Stdout), "info")
}

func console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
}

// Init configures the root logger from node config. Stdout gets console
// output unless jsonOutput is set; file, when given, always gets JSON.
func Init(level string, jsonOutput bool, file string) error {
	var out io.Writer = os.Stdout
	if !jsonOutput {
		out = console(os.Stdout)
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(out, f)
	}
	SetOutput(out, level)
	return nil
}

// SetOutput points every logger at w, filtered to level.
func SetOutput(w io.Writer, level string) {
	Logger = zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	Engine = WithComponent("engine")
	Storage = WithComponent("storage")
	RPC = WithComponent("rpc")
	Node = WithComponent("node")
}

// parseLevel maps a level name to zerolog.Level. Anything unrecognised is
// info.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithComponent returns a child of Logger tagged with component=name.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Timed starts a stopwatch for op; calling the result logs the elapsed
// time at debug level.
func Timed(l zerolog.Logger, op string) func() {
	start := time.Now()
	return func() {
		l.Debug().Str("op", op).Dur("took", time.Since(start)).Msg("timing")
	}
}
