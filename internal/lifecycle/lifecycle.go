// Package lifecycle holds the process-wide draining flag consulted by the
// health endpoint during graceful shutdown.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown flips the drain flag. The signal handler sets it true so
// load balancers stop routing new players here before the listener closes.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
