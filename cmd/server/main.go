package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/server"
)

func main() {
	cfg := config.LoadOrDefault()

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "HTTP port")
	flag.StringVar(&cfg.Server.GRPCPort, "grpc-port", cfg.Server.GRPCPort, "gRPC port")
	flag.StringVar(&cfg.Boot.ManifestPath, "manifest", cfg.Boot.ManifestPath, "Boot manifest (.yaml or .toml)")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (colored logs, debug level)")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if *dev {
		cfg.Logging.Development = true
		logCfg = logging.DevelopmentConfig()
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
