// Package dlog is the daemon's diagnostic stream: every agent logs through
// it rather than touching stdio directly.
//
// The teacher (bt/controller) imports a sibling "bt/logger" package and
// calls logger.Wlog.SaveDebugLog(...) / SaveErrLog(...) / SaveInfoLog(...)
// from every routine. That package wasn't itself part of the retrieved
// fragment, so this reimplements the same "one shared package-level
// logger, named Save*Log methods, called from every agent" shape — but
// backed by go.uber.org/zap's SugaredLogger instead of a hand-rolled file
// writer, matching how the rest of the pack (libp2p's go-log, zap-based
// projects named in the blacktrace and goop2 manifests) does structured
// logging.
package dlog

import (
	"sync"

	"go.uber.org/zap"
)

// Log is the process-wide diagnostic logger, analogous to the teacher's
// package-level logger.Wlog.
var Log = newDefault()

var initOnce sync.Once

func newDefault() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

// Configure swaps in a differently-configured logger (e.g. development
// mode with human-readable console output). Safe to call once at startup
// before any agent begins logging.
func Configure(development bool) {
	initOnce.Do(func() {
		var l *zap.Logger
		var err error
		if development {
			l, err = zap.NewDevelopment()
		} else {
			l, err = zap.NewProduction()
		}
		if err != nil {
			return
		}
		Log = l.Sugar()
	})
}

// Sync flushes any buffered log entries. Call during shutdown.
func Sync() {
	_ = Log.Sync()
}

// SaveDebugLog records a debug-level diagnostic line.
func SaveDebugLog(msg string, keysAndValues ...interface{}) {
	Log.Debugw(msg, keysAndValues...)
}

// SaveInfoLog records an info-level diagnostic line.
func SaveInfoLog(msg string, keysAndValues ...interface{}) {
	Log.Infow(msg, keysAndValues...)
}

// SaveWarnLog records a warn-level diagnostic line, used for recoverable
// configuration problems (spec: "Configuration errors: logged, default
// substituted").
func SaveWarnLog(msg string, keysAndValues ...interface{}) {
	Log.Warnw(msg, keysAndValues...)
}

// SaveErrLog records an error-level diagnostic line.
func SaveErrLog(msg string, keysAndValues ...interface{}) {
	Log.Errorw(msg, keysAndValues...)
}
