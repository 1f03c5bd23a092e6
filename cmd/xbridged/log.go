// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/xbridge-swap/xbridge-core/dex"
)

// logWriter outputs to both stdout and the log rotator's write pipe.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if logRotator == nil {
		return os.Stdout.Write(p)
	}
	os.Stdout.Write(p)
	return logRotator.Write(p) // not safe for concurrent writers, so only one logWriter{} allowed!
}

// Loggers per subsystem. A single backend logger is created and every
// subsystem logger created from it writes to that backend. Loggers must
// not be used before initLogRotator and parseAndSetDebugLevels have run.
var (
	logRotator *rotator.Rotator

	log = dex.Disabled

	subsystemLoggers = map[string]dex.Logger{
		"MAIN": dex.Disabled,
		"APP":  dex.Disabled,
		"HUB":  dex.Disabled,
		"WALT": dex.Disabled,
		"SNOD": dex.Disabled,
		"WAIT": dex.Disabled,
	}
)

// supportedSubsystems returns a sorted slice of the subsystem identifiers
// recognized by -debuglevel.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// initLogRotator initializes the log rotator to write logFile, creating
// roll files alongside it. Must be called before any package-level logger
// variable above is used.
func initLogRotator(logFile string, maxRolls int) {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	var err error
	logRotator, err = rotator.New(logFile, 32*1024, false, maxRolls)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}
}

// setLogLevel sets the logging level for the named subsystem, a no-op if
// subsysID is unrecognized.
func setLogLevel(subsysID, logLevel string) {
	logger, ok := subsystemLoggers[subsysID]
	if !ok {
		return
	}
	lvl, ok := slog.LevelFromString(logLevel)
	if !ok {
		return
	}
	logger.SetLevel(lvl)
}

// setLogLevels sets every subsystem's level to lvl.
func setLogLevels(lvl slog.Level) {
	for subsysID := range subsystemLoggers {
		subsystemLoggers[subsysID].SetLevel(lvl)
	}
	log = subsystemLoggers["MAIN"]
}
