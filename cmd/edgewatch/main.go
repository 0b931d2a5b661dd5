package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lcalzada-xor/edgewatch/internal/app"
	"github.com/lcalzada-xor/edgewatch/internal/config"
)

func main() {
	// load config
	cfg := config.Load()

	// Initialize Application
	application, err := app.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Root Context with cancellation on Interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("edgewatch starting...")

	// Run Application
	if err := application.Run(ctx); err != nil {
		slog.Error("Application error", "error", err)
		cancel()
		os.Exit(1)
	}
}
