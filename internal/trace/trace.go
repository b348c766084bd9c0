// Package trace provides optional lifecycle tracing for the primitives in
// this module. Tracing is off by default and enabled by setting OXIDE_TRACE
// to any non-empty value, in which case events (arc clones and drops, mutex
// poisonings, channel closures, thread spawns and joins) are written to
// stderr as structured debug lines.
//
// Each package obtains a named logger once at init:
//
//	var tr = trace.Logger("mutex")
//
// and guards hot-path events with trace.Enabled() so the disabled case
// costs a single boolean read.
package trace

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	root    *zap.Logger
	enabled bool
)

func init() {
	if os.Getenv("OXIDE_TRACE") == "" {
		root = zap.NewNop()
		return
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		root = zap.NewNop()
		return
	}
	root = logger.Named("oxide")
	enabled = true
}

// Enabled reports whether tracing is active. Callers use it to skip field
// construction on hot paths.
func Enabled() bool {
	return enabled
}

// Logger returns a named sub-logger for one primitive category.
func Logger(category string) *zap.Logger {
	return root.Named(category)
}
