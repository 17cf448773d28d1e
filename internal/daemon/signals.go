package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// signalContext derives a context cancelled on interrupt or SIGTERM so
// the daemon loop unwinds through the normal shutdown path. Callers must
// invoke the cancel function to unregister the handlers.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
