// Command agentdesk runs the customer support chat service.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hupe1980/agentdesk/config"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/telemetry"
)

func main() {
	configPath := flag.String("config", "agentdesk.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: os.Stdout})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("telemetry.shutdown.error", "error", err.Error())
			}
		}()
	}

	a, err := build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to build service: %v", err)
	}
	defer a.Close()

	if err := a.server.Start(ctx, cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("server.error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("server.stopped")
}
