package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"kraken-trading-bot/config"
	"kraken-trading-bot/internal/database"
	"kraken-trading-bot/internal/engine"
	"kraken-trading-bot/internal/kraken"
	"kraken-trading-bot/internal/logging"
	"kraken-trading-bot/internal/notification"
	"kraken-trading-bot/internal/risk"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty)
	logger.Info().Msg("kraken trading bot starting")

	db, err := database.NewDB(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("database migrations failed")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	riskStateStore := database.NewRedisRiskStateStore(redisClient, logger)

	var notifier notification.Notifier = notification.NoopNotifier{}
	if cfg.Notification.TelegramEnabled {
		notifier = notification.NewTelegramNotifier(cfg.Notification.TelegramBotToken, cfg.Notification.TelegramChatID, logger)
		logger.Info().Msg("telegram notifications enabled")
	}

	exchange := kraken.NewClient(cfg.Kraken.APIKey, cfg.Kraken.PrivateKey, cfg.Kraken.BaseURL)
	repo := database.NewRepository(db)

	riskManager := risk.NewManager(risk.ProfileForLevel("medium"), riskStateStore, logger)
	eng := engine.New(exchange, repo, notifier, riskManager, logger)

	notification.Send(notifier, logger, "🤖 Kraken trading bot started")

	if err := eng.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("trading loop failed")
	}
	logger.Info().Msg("kraken trading bot stopped")
}
