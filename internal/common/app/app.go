package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// CreateContextWithShutdown returns a context that is cancelled when SIGINT or
// SIGTERM is received. Control loops should derive from it instead of keeping
// their own shutdown flag. A second signal during shutdown exits immediately,
// so a hung cleanup cannot make the process unkillable.
func CreateContextWithShutdown() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		received := <-signals
		log.Infof("Received %s, shutting down", received)
		cancel()
		received = <-signals
		log.Fatalf("Received %s during shutdown, exiting", received)
	}()
	return ctx
}
