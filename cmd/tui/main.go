// cmd/tui/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/app"
	"github.com/rovshanmuradov/solana-testlab/internal/config"
	"github.com/rovshanmuradov/solana-testlab/internal/logger"
	"github.com/rovshanmuradov/solana-testlab/internal/ui"
)

const (
	logBufferSize   = 2000
	uiUpdatesBuffer = 512
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

	// The terminal belongs to the UI, so logs go to the file and the
	// in-memory buffer the Logs view reads.
	buffer, err := logger.NewLogBuffer(logBufferSize, "", zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to init log buffer: %v", err)
	}
	logCfg := logger.DefaultConfig()
	logCfg.File = cfg.Log.File
	logCfg.Debug = cfg.Log.Debug
	logCfg.Console = false
	logCfg.Buffer = buffer
	appLogger, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(appLogger)
		_ = buffer.Close()
	}()

	appLogger.Info("🚀 Starting testlab TUI")

	engine, err := app.New(rootCtx, cfg, appLogger)
	if err != nil {
		log.Printf("Failed to start engine: %v", err)
		_ = logger.Sync(appLogger)
		os.Exit(1)
	}

	updates := ui.NewUpdateSender(engine.Bus, uiUpdatesBuffer, appLogger)
	defer updates.Close()

	runCtx, cancel := context.WithCancel(rootCtx)
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(runCtx)
	}()

	model := ui.NewSafeModel(ui.NewModel(engine.Monitor, updates, buffer), appLogger)
	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(rootCtx),
	)
	if _, err := program.Run(); err != nil && rootCtx.Err() == nil {
		appLogger.Error("💥 TUI application failed", zap.Error(err))
	}

	appLogger.Info("🛑 Shutting down TUI application")
	cancel()
	if err := <-engineDone; err != nil {
		log.Printf("Engine stopped with error: %v", err)
	}
}
