// Package cli holds the process plumbing shared by the train and predict commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
)

// Given reports whether --long (or --long=value) appears in args. Only flags
// the user typed are forwarded as config overrides, so defaults never mask
// the YAML file or the environment.
func Given(args []string, long string) bool {
	flag := "--" + long
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == flag || strings.HasPrefix(a, flag+"=") {
			return true
		}
	}
	return false
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Logger installs the logger for level and format, falling back to an info
// console logger when they are invalid.
func Logger(level, format string, w io.Writer) log.Logger {
	l, err := log.Setup(level, format, w)
	if err != nil {
		l, _ = log.Setup("info", log.FormatConsole, w)
		l.Warn("Falling back to the console logger", err)
	}
	return l
}

// Fail logs err with its exit code and returns that code.
func Fail(logger log.Logger, msg string, err error) int {
	code := errors.ExitCode(err)
	logger.Error(msg, err, log.ExitCodeKey, code)
	return code
}

// UsageError prints argparse's usage text for a command-line parse error.
func UsageError(w io.Writer, usage string) int {
	fmt.Fprint(w, usage)
	return errors.ExitConfig
}
