// cmd/tglogin/main.go
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rovshanmuradov/solana-testlab/internal/config"
	"github.com/rovshanmuradov/solana-testlab/internal/logger"
	"github.com/rovshanmuradov/solana-testlab/internal/messaging"
)

// tglogin authorizes the Telegram session file used by forward actions.
func main() {
	configPath := flag.String("config", "", "Path to config file (yaml or json)")
	password := flag.String("password", os.Getenv("TESTLAB_TELEGRAM_PASSWORD"), "Two-step verification password, if enabled")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Telegram.Phone == "" {
		log.Fatal("telegram.phone is required to log in")
	}

	logCfg := logger.DefaultConfig()
	logCfg.File = cfg.Log.File
	logCfg.Debug = cfg.Log.Debug
	appLogger, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync(appLogger) }()

	account, err := messaging.NewTelegramAccount(messaging.TelegramConfig{
		AppID:       cfg.Telegram.AppID,
		AppHash:     cfg.Telegram.AppHash,
		SessionFile: cfg.Telegram.SessionFile,
		Logger:      appLogger,
	})
	if err != nil {
		log.Fatalf("Failed to create Telegram client: %v", err)
	}

	stdin := bufio.NewReader(os.Stdin)
	code := func(context.Context) (string, error) {
		fmt.Print("Enter code: ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	if err := account.Login(ctx, cfg.Telegram.Phone, *password, code); err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	fmt.Printf("Session saved to %s\n", cfg.Telegram.SessionFile)
}
