// Package async wraps background goroutines with panic recovery so a
// misbehaving tool server or stream reader cannot take down the process.
package async

import "runtime/debug"

// ErrorLogger receives panic reports.
type ErrorLogger interface {
	Error(format string, args ...any)
}

// Go runs fn on a new goroutine with panic recovery.
func Go(logger ErrorLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs a panic instead of crashing. Intended for use in defer.
func Recover(logger ErrorLogger, name string) {
	r := recover()
	if r == nil || logger == nil {
		return
	}
	logger.Error("goroutine panic [%s]: %v\n%s", name, r, debug.Stack())
}
