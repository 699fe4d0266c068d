package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract shared by all
// components so packages can depend on logging without importing each other.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// componentLogger writes level-tagged lines to a shared sink.
type componentLogger struct {
	sink      *sink
	component string
	level     Level
}

type sink struct {
	mu     sync.Mutex
	logger *log.Logger
	file   *os.File
}

var (
	sharedSink *sink
	sinkOnce   sync.Once
)

func getSink() *sink {
	sinkOnce.Do(func() {
		var out io.Writer = os.Stderr
		var file *os.File
		if dir := os.Getenv("NULALABS_LOG_DIR"); dir != "" {
			path := filepath.Join(dir, "nulalabs-debug.log")
			if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				out = io.MultiWriter(os.Stderr, f)
				file = f
			}
		}
		sharedSink = &sink{logger: log.New(out, "", 0), file: file}
	})
	return sharedSink
}

// NewComponentLogger creates a logger scoped to a component name.
func NewComponentLogger(component string) Logger {
	level := LevelInfo
	if os.Getenv("NULALABS_DEBUG") != "" {
		level = LevelDebug
	}
	return &componentLogger{sink: getSink(), component: component, level: level}
}

func (l *componentLogger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.sink.mu.Lock()
	l.sink.logger.Printf("[%s] [%s] [%s] %s", ts, level, l.component, msg)
	l.sink.mu.Unlock()
}

func (l *componentLogger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.log(LevelError, format, args...) }
