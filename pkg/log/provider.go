package log

import (
	"io"
	"os"
	"sync"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// Output formats accepted by Setup.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatCloud   = "cloud"
)

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewZerologLogger(os.Stderr, LevelInfo, true)
)

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// GetLoggerWithName returns the process-wide logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}

// SetLogger replaces the process-wide logger. Tests use it to install a TestLogger.
func SetLogger(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Setup installs the process-wide logger for the given level and format and
// routes warnings raised through errors.Warn into it.
func Setup(level, format string, w io.Writer) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	var l Logger
	switch format {
	case FormatConsole, "":
		l = NewZerologLogger(w, lvl, true)
	case FormatJSON:
		l = NewZerologLogger(w, lvl, false)
	case FormatCloud:
		l = NewSlogLogger(SetupCloudLogger(w, lvl))
	default:
		return nil, errors.NewConfigError("log_format", "must be one of console, json, cloud", format)
	}

	SetLogger(l)
	errors.SetZerologWarnFunc(func(warning error) {
		GetLogger().Warn(warning.Error(), ErrorTypeKey, "warning", "warning", warning)
	})
	return l, nil
}
