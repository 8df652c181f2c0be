// Package logging configures Chorus's structured logger and hands out
// component sub-loggers, one per subsystem, the way the teacher's own log
// package scopes loggers by component/node/service/task.
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the root logger's level, destination, and rotation.
type Config struct {
	Level   string // debug, info, warn, error
	File    string // when set, logs are written here with lumberjack rotation instead of stdout
	Pretty  bool   // force console-pretty output regardless of TTY detection; zero value auto-detects
	NoColor bool
}

var root zerolog.Logger

// Init configures the package-level root logger. Component loggers created
// by New derive from whatever Init last configured; until Init runs, the
// root logger is zerolog's zero value, which has no writer and drops
// every event.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	} else if cfg.Pretty || isatty.IsTerminal(os.Stdout.Fd()) {
		out = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	root = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// New returns a logger scoped to component, e.g. "lockmgr", "ops",
// "discovery", "http", "reaper".
func New(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}
