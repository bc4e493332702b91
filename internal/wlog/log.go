// Package wlog provides the single structured logger shared by
// pkg/vm and cmd/wisp. Centralizing it here keeps every
// package from configuring its own formatter and lets the CLI's
// --trace flag raise or lower the level in one place.
package wlog

import (
	"os"

	"github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
)

// Log is the shared logger. Its default level is Info; cmd/wisp turns
// on Debug when --trace is passed.
var Log = logrus.New()

func init() {
	Log.Out = os.Stderr
	Log.SetFormatter(&easy.Formatter{
		LogFormat: "[%lvl%] %msg%\n",
	})
	Log.SetLevel(logrus.InfoLevel)
}

// SetTrace switches the shared logger to Debug level, which turns on
// the VM's per-instruction trace output.
func SetTrace(enabled bool) {
	if enabled {
		Log.SetLevel(logrus.DebugLevel)
		return
	}
	Log.SetLevel(logrus.InfoLevel)
}
