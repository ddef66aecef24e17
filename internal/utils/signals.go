// Package utils holds small process-lifecycle helpers shared by every
// command. Adapted from utils/signals.go.
package utils

import (
	"os"
	"os/signal"
	"syscall"
)

// WaitForQuit blocks until SIGHUP, SIGINT, SIGQUIT, or SIGTERM is
// received and returns the signal that fired.
func WaitForQuit() os.Signal {
	quit := make(chan os.Signal, 1)
	defer close(quit)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	return <-quit
}

// QuitChannel registers and returns a channel notified on the same
// signal set as WaitForQuit, for callers that need to select on it.
func QuitChannel() chan os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	return quit
}
