package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/saint0x/reposage/pkg/log"
)

// signalContext is cancelled on the first SIGINT or SIGTERM. A second signal
// exits immediately.
func signalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			// First signal, graceful shutdown
			logger.Warning("Received signal: %v, finishing in-flight calls", sig)
			logger.Info("Press Ctrl+C again to force stop")
			cancel()
		case <-ctx.Done():
			return
		}

		// Second signal, force exit
		<-sigCh
		logger.Error("Force stopping...")
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
