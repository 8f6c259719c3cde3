package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atabekov-a/minibank/internal/api"
	"github.com/atabekov-a/minibank/internal/config"
	"github.com/atabekov-a/minibank/internal/domain/models"
	"github.com/atabekov-a/minibank/internal/registry"
	"github.com/shopspring/decimal"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting application",
		slog.String("env", cfg.Env),
		slog.String("host", cfg.ApiHost),
		slog.Int("port", cfg.ApiPort),
	)

	initialBalance, err := decimal.NewFromString(cfg.Bank.InitialBalance)
	if err != nil {
		log.Error("Invalid initial balance in config", "error", err)
		os.Exit(1)
	}

	dir := registry.New()
	bank := models.NewBank(dir, models.Options{
		AllowNegativeBalance: cfg.Bank.AllowNegativeBalance,
	})

	log.Info("Bank created", slog.String("bank", bank.ID()))

	apiServer := api.New(cfg, log, dir, bank, initialBalance, []byte(cfg.JwtSecret))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		apiServer.MustStart()
	}()

	<-sigChan
	log.Info("Got signal to shutdown server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		log.Error("Stopping server error", "error", err)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
