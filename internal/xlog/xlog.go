// Package xlog is the ambient structured logger shared by engine, scan and
// driver. It wraps a logiface logger backed by stumpy's JSON encoder, with a
// package-level default that callers can swap out via Set, mirroring the swap-a-global-logger convention used elsewhere in this
// module family.
package xlog

import (
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type used throughout this module.
type Logger = logiface.Logger[*stumpy.Event]

var (
	mu      sync.RWMutex
	current *Logger = stumpy.L.New()
)

// Set replaces the package-level default logger. Passing nil restores the
// built-in stumpy-backed default.
func Set(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = stumpy.L.New()
	}
	current = l
}

// Get returns the current package-level default logger.
func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}
