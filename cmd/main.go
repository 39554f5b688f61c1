package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"traingrid/pkg/logger"
)

const shutdownGrace = 30 * time.Second

func main() {
	app := NewApplication()

	if err := app.Initialize(); err != nil {
		logger.FatalCtx(nil, "Scheduler initialization failed: %v", err)
	}

	if err := app.Start(); err != nil {
		logger.FatalCtx(app.ctx, "Scheduler startup failed: %v", err)
	}

	// Block until SIGINT or SIGTERM, then drain in-flight requests.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.InfoCtx(app.ctx, "Received exit signal: %v", sig)

	if err := app.Shutdown(shutdownGrace); err != nil {
		logger.ErrorCtx(app.ctx, "Scheduler shutdown failed: %v", err)
		os.Exit(1)
	}

	logger.InfoCtx(app.ctx, "Scheduler exited cleanly")
}
