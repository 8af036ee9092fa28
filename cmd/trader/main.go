package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillm/powertrader/internal/broker"
	"github.com/kirillm/powertrader/internal/config"
	"github.com/kirillm/powertrader/internal/engine"
	"github.com/kirillm/powertrader/internal/hub"
	"github.com/kirillm/powertrader/internal/ledger"
	"github.com/kirillm/powertrader/internal/metrics"
	"github.com/kirillm/powertrader/internal/orders"
	"github.com/kirillm/powertrader/internal/signals"
	"github.com/kirillm/powertrader/internal/storage"
	"github.com/kirillm/powertrader/internal/telegram"
	"github.com/kirillm/powertrader/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("🚀 PowerTrader starting")

	h, err := hub.New(cfg.Engine.HubDir, logger)
	if err != nil {
		logger.Error("Failed to open hub directory: %v", err)
		return
	}

	settingsLoader := config.NewSettingsLoader(h.Path(hub.SettingsFile))
	signalsReader := signals.NewReader(cfg.Engine.SignalsDir, cfg.Engine.SignalMaxAge, logger)

	cb := broker.NewCoinbaseClient(cfg.Coinbase.APIKey, cfg.Coinbase.APISecret, cfg.Coinbase.BaseURL, cfg.Coinbase.RateLimit)
	bounded := broker.NewBounded(cb, cfg.Engine.BrokerTimeout)

	book := ledger.Load(h, logger)
	orderManager := orders.NewManager(bounded, book, logger, cfg.Engine.OrderPollInterval, cfg.Engine.OrderMaxWait)

	var archive *storage.PostgresArchive
	if cfg.Database.URL != "" {
		archive, err = storage.NewPostgresArchive(cfg.Database.URL)
		if err != nil {
			logger.Error("Postgres archive unavailable, continuing without it: %v", err)
			archive = nil
		} else {
			defer archive.Close()
			logger.Info("Postgres archive connected")
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Engine.MetricsAddr != "" {
		metrics.Serve(cfg.Engine.MetricsAddr, logger)
	}

	eng := engine.New(cfg, settingsLoader, h, signalsReader, bounded, book, orderManager, m, archive, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Зависшие с прошлого запуска ордера разбираются до первого прохода
	if err := orderManager.ReconcileOnStartup(ctx); err != nil {
		logger.Error("Startup reconciliation failed: %v", err)
		return
	}

	if cfg.TelegramEnabled() {
		bot, err := telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.AdminIDs, eng, logger)
		if err != nil {
			logger.Error("Telegram bot unavailable, continuing without it: %v", err)
		} else {
			eng.SetNotifier(bot)
			go bot.Start()
		}
	}

	if err := eng.Run(ctx); err != nil {
		logger.Error("Engine stopped with error: %v", err)
		return
	}
	logger.Info("🛑 PowerTrader stopped")
}
