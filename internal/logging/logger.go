// Package logging provides the engine's pluggable logger vtable
// (spec.md §4.6 Init), defaulting to a structured stdout/stderr logger
// with file/line/function prefixes, backed by logrus instead of log/slog
// so the engine exercises an ecosystem structured-logging library rather
// than the standard library's.
package logging

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zbum/purespice-go/internal/spiceapi"
)

// Logger is the structured-logging surface consumed by the channel,
// agent, and session packages.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

var (
	mu      sync.Mutex
	current Logger = newDefault()
)

// Init installs fn as the process-wide log sink, or restores the default
// logrus-backed logger when fn is nil. Init is idempotent: calling it
// twice with the same (or no) vtable is safe (spec.md §4.6).
func Init(fn spiceapi.LogFunc) {
	mu.Lock()
	defer mu.Unlock()
	if fn == nil {
		current = newDefault()
		return
	}
	current = &callbackLogger{fn: fn}
}

// Current returns the process-wide logger.
func Current() Logger {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// callbackLogger adapts a host-supplied spiceapi.LogFunc, capturing the
// caller's file/line/function the same way defaultLogger does.
type callbackLogger struct {
	fn spiceapi.LogFunc
}

func (c *callbackLogger) log(level spiceapi.LogLevel, format string, args ...interface{}) {
	file, line, fn := callerInfo(3)
	c.fn(level, file, line, fn, fmt.Sprintf(format, args...))
}

func (c *callbackLogger) Debugf(format string, args ...interface{}) {
	c.log(spiceapi.LogDebug, format, args...)
}
func (c *callbackLogger) Infof(format string, args ...interface{}) {
	c.log(spiceapi.LogInfo, format, args...)
}
func (c *callbackLogger) Warnf(format string, args ...interface{}) {
	c.log(spiceapi.LogWarn, format, args...)
}
func (c *callbackLogger) Errorf(format string, args ...interface{}) {
	c.log(spiceapi.LogError, format, args...)
}

// defaultLogger writes to stdout (debug/info) and stderr (warn/error)
// through logrus, splitting by severity between the two streams.
type defaultLogger struct {
	out *logrus.Logger
	err *logrus.Logger
}

func newDefault() *defaultLogger {
	out := logrus.New()
	out.SetOutput(os.Stdout)
	out.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	errOut := logrus.New()
	errOut.SetOutput(os.Stderr)
	errOut.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &defaultLogger{out: out, err: errOut}
}

func (d *defaultLogger) entry(l *logrus.Logger) *logrus.Entry {
	file, line, fn := callerInfo(3)
	return l.WithFields(logrus.Fields{"file": file, "line": line, "func": fn})
}

func (d *defaultLogger) Debugf(format string, args ...interface{}) {
	d.entry(d.out).Debugf(format, args...)
}
func (d *defaultLogger) Infof(format string, args ...interface{}) {
	d.entry(d.out).Infof(format, args...)
}
func (d *defaultLogger) Warnf(format string, args ...interface{}) {
	d.entry(d.err).Warnf(format, args...)
}
func (d *defaultLogger) Errorf(format string, args ...interface{}) {
	d.entry(d.err).Errorf(format, args...)
}

func callerInfo(skip int) (file string, line int, function string) {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "?", 0, "?"
	}
	file = shortFile(file)
	function = "?"
	if f := runtime.FuncForPC(pc); f != nil {
		function = shortFunc(f.Name())
	}
	return file, line, function
}

func shortFile(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func shortFunc(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
