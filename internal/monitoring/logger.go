// Package monitoring holds the diagnostic loggers shared by every stage.
package monitoring

import (
	"log"
	"os"
)

// Logf is the package-level diagnostic logger. It writes to stderr by default
// and may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.New(os.Stderr, "", log.LstdFlags).Printf

// Debugf receives detail lines such as per-stage row counts and deleted
// identifiers. It is muted until SetVerbose(true).
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil mutes it, along with
// any verbose output routed through it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		Debugf = Logf
		return
	}
	Logf = f
}

// SetVerbose routes Debugf through the current logger, or mutes it.
func SetVerbose(on bool) {
	if !on {
		Debugf = func(string, ...interface{}) {}
		return
	}
	Debugf = func(format string, v ...interface{}) { Logf(format, v...) }
}
