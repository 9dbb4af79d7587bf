// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package log provides named, leveled loggers.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/op/go-logging"
)

// Level is the type of a logger verbosity level.
type Level int

// Levels that can be passed to SetLevel.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Notice:
		return "notice"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel parses a level name (case insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "", "notice":
		return Notice, nil
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	}
	return Notice, fmt.Errorf("log: unknown level %q", s)
}

// Logger is the interface of a named logger.
type Logger interface {
	Debug(v ...any)
	Debugf(format string, v ...any)

	Info(v ...any)
	Infof(format string, v ...any)

	Notice(v ...any)
	Noticef(format string, v ...any)

	Warning(v ...any)
	Warningf(format string, v ...any)

	Error(v ...any)
	Errorf(format string, v ...any)
}

var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level}]%{color:reset} %{message}`,
)

var (
	backend logging.LeveledBackend
	level   = Notice
)

// New creates a new named logger.
func New(name string) Logger { return logging.MustGetLogger(name) }

// SetSink replaces the output of every logger.
// The current level is preserved.
func SetSink(sink io.Writer) {
	b := logging.NewLogBackend(sink, "", 0)
	f := logging.NewBackendFormatter(b, format)
	backend = logging.AddModuleLevel(f)
	logging.SetBackend(backend)
	SetLevel(level)
}

// SetLevel sets the verbosity of every logger.
func SetLevel(l Level) {
	var ll logging.Level
	switch l {
	case Debug:
		ll = logging.DEBUG
	case Info:
		ll = logging.INFO
	case Notice:
		ll = logging.NOTICE
	case Warning:
		ll = logging.WARNING
	default:
		ll = logging.ERROR
	}
	level = l
	backend.SetLevel(ll, "")
}

// CurrentLevel returns the level set by SetLevel.
func CurrentLevel() Level { return level }

func init() {
	SetSink(os.Stdout)
}
