package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"wabridge/pkg/logger"
	"wabridge/pkg/server"
	"wabridge/pkg/whatsapp"
)

func serveCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	configureLogging(cfg)

	adapter := whatsapp.NewAdapter(whatsapp.AdapterConfig{
		StorePath:  cfg.StorePath(),
		DeviceName: cfg.WhatsApp.DeviceName,
	})
	srv := server.NewServer(cfg, adapter, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pidFile := filepath.Join(filepath.Dir(getConfigPath()), "wabridge.pid")
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
		fmt.Printf("Warning: failed to write PID file: %v\n", err)
	} else {
		defer os.Remove(pidFile)
	}

	fmt.Printf("✓ Gateway listening on %s\n", cfg.ListenAddr())
	fmt.Println("Press Ctrl+C to stop.")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return adapter.Run(ctx)
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.ErrorCF("gateway", "Gateway exited with error", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		fmt.Printf("Gateway error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Gateway stopped")
}
