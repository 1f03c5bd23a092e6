// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"os"
	"os/signal"
)

// withShutdownCancel returns a context that is canceled when shutdownListener
// is triggered by an interrupt signal.
func withShutdownCancel(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(ctx)
}

// shutdownListener listens for an interrupt and cancels cancel on receipt. A
// second interrupt forces an immediate os.Exit.
func shutdownListener(cancel context.CancelFunc) {
	killChan := make(chan os.Signal, 1)
	signal.Notify(killChan, os.Interrupt)
	<-killChan
	log.Infof("Shutdown signal received, shutting down...")
	cancel()
	<-killChan
	log.Warnf("Second shutdown signal received, exiting now.")
	os.Exit(1)
}
