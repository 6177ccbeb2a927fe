package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// SetupSignalHandler returns a context cancelled on SIGTERM or SIGINT.
// shutdownFunc, if set, runs before the context is cancelled. A second
// signal exits immediately.
func SetupSignalHandler(log *zap.Logger, shutdownFunc func(context.Context)) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))

		if shutdownFunc != nil {
			shutdownFunc(ctx)
		}
		cancel()

		sig = <-sigCh
		log.Warn("Received second signal, forcing exit", zap.String("signal", sig.String()))
		os.Exit(1)
	}()

	return ctx
}
