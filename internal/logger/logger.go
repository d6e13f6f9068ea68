// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logger wires a single rotating-file backend to one
// btclog.Logger per ledger subsystem.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter implements an io.Writer that outputs to both standard output
// and the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem. A single backend logger is created and all
// subsystem loggers created from it write to the backend. Loggers must
// not be used before InitLogRotator has run.
var (
	backendLog = btclog.NewBackend(logWriter{})

	// LogRotator is the rotating file backend. It should be closed on
	// application shutdown.
	LogRotator *rotator.Rotator

	utxoLog = backendLog.Logger("UTXO")
	mempLog = backendLog.Logger("MEMP")
	minrLog = backendLog.Logger("MINR")
	chanLog = backendLog.Logger("CHAN")
	govnLog = backendLog.Logger("GOVN")
	cordLog = backendLog.Logger("CORD")
	storLog = backendLog.Logger("STOR")
	vldtLog = backendLog.Logger("VLDT")
	dffcLog = backendLog.Logger("DFFC")

	initiated = false
)

// SubsystemTags is an enum of all ledger-core subsystem tags.
var SubsystemTags = struct {
	UTXO, MEMP, MINR, CHAN, GOVN, CORD, STOR, VLDT, DFFC string
}{
	UTXO: "UTXO",
	MEMP: "MEMP",
	MINR: "MINR",
	CHAN: "CHAN",
	GOVN: "GOVN",
	CORD: "CORD",
	STOR: "STOR",
	VLDT: "VLDT",
	DFFC: "DFFC",
}

var subsystemLoggers = map[string]btclog.Logger{
	SubsystemTags.UTXO: utxoLog,
	SubsystemTags.MEMP: mempLog,
	SubsystemTags.MINR: minrLog,
	SubsystemTags.CHAN: chanLog,
	SubsystemTags.GOVN: govnLog,
	SubsystemTags.CORD: cordLog,
	SubsystemTags.STOR: storLog,
	SubsystemTags.VLDT: vldtLog,
	SubsystemTags.DFFC: dffcLog,
}

// InitLogRotator initializes the logging rotator to write logs to logFile,
// creating roll files in the same directory. It must be called before any
// subsystem logger is used if on-disk logging is desired.
func InitLogRotator(logFile string) {
	initiated = true
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %s\n", err)
			os.Exit(1)
		}
	}
	r, err := rotator.New(logFile, 10*1024*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %s\n", err)
		os.Exit(1)
	}
	LogRotator = r
}

// Get returns the logger for a specific subsystem.
func Get(tag string) (l btclog.Logger, ok bool) {
	l, ok = subsystemLoggers[tag]
	return
}

// SetLogLevel sets the logging level for the provided subsystem. Invalid
// subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	l, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	l.SetLevel(level)
}

// SetLogLevels sets the log level for every subsystem logger.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns a sorted slice of the supported subsystems.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ParseAndSetDebugLevels attempts to parse the specified debug level
// string (either a single level, or a comma-separated list of
// subsystem=level pairs) and set the levels accordingly.
func ParseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", debugLevel)
		}
		SetLogLevels(debugLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]", logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := Get(subsysID); !exists {
			return fmt.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsysID, strings.Join(SupportedSubsystems(), ", "))
		}

		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", logLevel)
		}

		SetLogLevel(subsysID, logLevel)
	}

	return nil
}

func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}
