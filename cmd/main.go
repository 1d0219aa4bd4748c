// Command dynsavings keeps idle quote-currency capital in Binance Flexible
// Savings while guaranteeing the companion DCA bot always has enough liquid
// balance for its next safety orders.
//
// Usage:
//
//	dynsavings --config config.yaml
//
// Required environment variables:
//
//	BINANCE_API_KEY, BINANCE_SECRET_KEY, TELEGRAM_BOT_TOKEN
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/vadiminshakov/dynsavings/config"
	"github.com/vadiminshakov/dynsavings/internal"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	bot, err := internal.NewSavingsBot(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create savings bot", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("savings bot stopped", zap.Error(err))
	}

	logger.Info("savings bot shut down")
}
