// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"fmt"
	"io"
	"strings"

	"github.com/decred/slog"
)

// Every backend constructor will accept a Logger. All logging should take place
// through the provided logger.
type Logger = slog.Logger

// Disabled is a Logger that drops everything, the default for any
// subsystem logger before parseAndSetDebugLevels (or equivalent) runs.
var Disabled = slog.Disabled

// LoggerMaker allows creation of new log subsystems with predefined levels.
type LoggerMaker struct {
	*slog.Backend
	DefaultLevel slog.Level
	Levels       map[string]slog.Level
}

// NewLoggerMaker parses a debug level specification of the form
// "<defaultLevel>" or "<defaultLevel>,<subsystem>=<level>,...", e.g.
// "info,COMM=debug,WAIT=trace", and builds a LoggerMaker backed by w.
func NewLoggerMaker(w io.Writer, debugLevel string) (*LoggerMaker, error) {
	backend := slog.NewBackend(w)
	lm := &LoggerMaker{
		Backend: backend,
		Levels:  make(map[string]slog.Level),
	}

	fields := strings.Split(debugLevel, ",")
	first := fields[0]
	lvl, ok := slog.LevelFromString(first)
	if !ok {
		return nil, fmt.Errorf("invalid debug level %q", first)
	}
	lm.DefaultLevel = lvl

	for _, f := range fields[1:] {
		parts := strings.SplitN(f, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid debug level specification %q", f)
		}
		subsysID, lvlStr := parts[0], parts[1]
		lvl, ok := slog.LevelFromString(lvlStr)
		if !ok {
			return nil, fmt.Errorf("invalid debug level %q for subsystem %s", lvlStr, subsysID)
		}
		lm.Levels[subsysID] = lvl
	}

	return lm, nil
}

// SetLevelsFromMap sets a default level for every named subsystem that
// doesn't already have an explicit level from NewLoggerMaker's parse.
func (lm *LoggerMaker) SetLevelsFromMap(levels map[string]slog.Level) {
	for subsysID, lvl := range levels {
		if _, ok := lm.Levels[subsysID]; !ok {
			lm.Levels[subsysID] = lvl
		}
	}
}

// SubLogger creates a Logger with a subsystem name "parent[name]", using any
// known log level for the parent subsystem, defaulting to the DefaultLevel if
// the parent does not have an explicitly set level.
func (lm *LoggerMaker) SubLogger(parent, name string) Logger {
	// Use the parent logger's log level, if set.
	level, ok := lm.Levels[parent]
	if !ok {
		level = lm.DefaultLevel
	}
	logger := lm.Backend.Logger(fmt.Sprintf("%s[%s]", parent, name))
	logger.SetLevel(level)
	return logger
}

// NewLogger creates a new Logger for the subsystem with the given name. If a
// log level is specified, it is used for the Logger. Otherwise the DefaultLevel
// is used.
func (lm *LoggerMaker) NewLogger(name string, level ...slog.Level) Logger {
	lvl := lm.DefaultLevel
	if len(level) > 0 {
		lvl = level[0]
	}
	logger := lm.Backend.Logger(name)
	logger.SetLevel(lvl)
	return logger
}
