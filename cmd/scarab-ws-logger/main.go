// Command scarab-ws-logger runs a simulation driver with its WebSocket
// sink enabled and no entities of its own, so that external tooling
// can be pointed at it to exercise the wire protocol: connect, observe
// TIME_UPDATED events every step, and send control strings back.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/billdback/scarab"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	host := flag.String("host", "localhost", "sink listen host")
	port := flag.Int("port", 8765, "sink listen port")
	stepMS := flag.Int("step-ms", 500, "milliseconds between simulation steps")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := scarab.DefaultConfig()
	if *configPath != "" {
		loaded, err := scarab.LoadConfig(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if cfg.SinkHost == "localhost" {
		cfg.SinkHost = *host
	}
	if cfg.SinkPort == 0 {
		cfg.SinkPort = *port
	}
	stepLength := time.Duration(*stepMS) * time.Millisecond
	if cfg.StepLengthMS > 0 {
		stepLength = time.Duration(cfg.StepLengthMS) * time.Millisecond
	}

	level, err := scarab.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid log_level in config", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	driver, err := scarab.NewDriver(cfg, logger)
	if err != nil {
		logger.Error("failed to start driver", "error", err)
		os.Exit(1)
	}

	logger.Info("scarab-ws-logger listening", "host", cfg.SinkHost, "port", cfg.SinkPort)
	fmt.Printf("connect a websocket client to ws://%s:%d/\n", cfg.SinkHost, cfg.SinkPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		driver.Shutdown()
		cancel()
	}()

	if err := driver.Run(1<<31-1, stepLength, false); err != nil {
		logger.Error("run failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := driver.Close(shutdownCtx); err != nil {
		logger.Error("sink shutdown failed", "error", err)
	}

	logger.Info("scarab-ws-logger stopped")
}
