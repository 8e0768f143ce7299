// cmd/bot/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erarta/api.neucor.ai/internal/bot"
	"github.com/erarta/api.neucor.ai/internal/config"
	"github.com/erarta/api.neucor.ai/internal/db"
	"github.com/erarta/api.neucor.ai/internal/ml"
	"github.com/erarta/api.neucor.ai/internal/payment"
	"github.com/erarta/api.neucor.ai/internal/profile"
	"github.com/erarta/api.neucor.ai/internal/server"
	"github.com/erarta/api.neucor.ai/pkg/logger"
)

func main() {
	l := logger.New()
	l.Info("Starting neucor.ai food analysis bot...")

	cfg, err := config.Load()
	if err != nil {
		l.Fatal("Failed to load config ", err)
	}

	if cfg.Telegram.Token == "" {
		l.Fatal("Telegram token is not configured")
	}
	if cfg.ML.ServiceURL == "" || cfg.ML.InternalToken == "" {
		l.Fatal("ML service configuration is incomplete")
	}
	if cfg.Telegram.ProviderToken == "" {
		// Invoices will be refused until the provider token is set; the
		// rest of the bot still works.
		l.Warn("Payment provider token is not configured")
	}

	// Initialize database connection with retry
	var database *db.PostgresDB
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		database, err = db.NewPostgresDB(db.Config(cfg.DB), l)
		if err == nil {
			break
		}
		l.Error("Failed to connect to database, retrying... ", err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if database == nil {
		l.Fatal("Failed to connect to database after multiple attempts ", err)
	}
	defer database.Close()

	stripeClient := payment.NewStripeClient(cfg.Stripe.SecretKey, cfg.Stripe.WebhookKey)
	mlClient := ml.NewClient(cfg.ML.ServiceURL, cfg.ML.InternalToken, cfg.ML.Timeout).WithModel(cfg.ML.Model)
	profiles := profile.NewService(database, l)
	flow := payment.NewFlow(cfg.Telegram.ProviderToken, database, l)

	telegramBot, err := bot.NewTelegramBot(cfg.Telegram.Token, database, flow, profiles, mlClient, l)
	if err != nil {
		l.Fatal("Failed to create Telegram bot ", err)
	}

	l.Info("Starting Telegram bot...")
	if err := telegramBot.Start(context.Background()); err != nil {
		l.Fatal("Failed to start Telegram bot ", err)
	}

	handler := server.NewHandler(database, mlClient, stripeClient, flow, l)
	httpServer := server.NewServer(cfg.Server.Port, handler, l)
	go func() {
		l.Info("Starting HTTP server...")
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("Failed to start HTTP server ", err)
		}
	}()

	// Wait for termination signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("Shutting down bot...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		l.Error("Error during HTTP server shutdown ", err)
	}

	if err := telegramBot.Stop(ctx); err != nil {
		l.Error("Error during bot shutdown ", err)
	}

	l.Info("Bot stopped successfully")
}
