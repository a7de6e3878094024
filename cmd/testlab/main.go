// cmd/testlab/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/app"
	"github.com/rovshanmuradov/solana-testlab/internal/config"
	"github.com/rovshanmuradov/solana-testlab/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml or json)")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.File = cfg.Log.File
	logCfg.Debug = cfg.Log.Debug
	appLogger, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(appLogger)
	}()

	appLogger.Info("🚀 Starting testlab engine")

	engine, err := app.New(rootCtx, cfg, appLogger)
	if err != nil {
		appLogger.Error("💥 Failed to start engine", zap.Error(err))
		_ = logger.Sync(appLogger)
		os.Exit(1)
	}

	if err := engine.Run(rootCtx); err != nil {
		appLogger.Error("💥 Engine stopped with error", zap.Error(err))
		_ = logger.Sync(appLogger)
		os.Exit(1)
	}
}
