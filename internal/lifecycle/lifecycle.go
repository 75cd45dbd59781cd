// Package lifecycle holds process-wide drain state shared by the signal
// handler and the health endpoint.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var drainStarted atomic.Pointer[time.Time]

// BeginShutdown marks the process as draining from at. Later calls keep the first time.
func BeginShutdown(at time.Time) {
	drainStarted.CompareAndSwap(nil, &at)
}

// ShuttingDown reports whether BeginShutdown has been called.
func ShuttingDown() bool {
	return drainStarted.Load() != nil
}

// DrainingSince returns when draining began, or the zero time when serving normally.
func DrainingSince() time.Time {
	if t := drainStarted.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Reset clears the drain state. Tests use it to restore a serving process.
func Reset() {
	drainStarted.Store(nil)
}
