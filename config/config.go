// Package config loads process configuration from the environment, with an
// optional .env file for local runs. Trading parameters are not here; those
// live in the bot_config table and hot-reload every cycle.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Kraken       KrakenConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Notification NotificationConfig
	Logging      LoggingConfig
}

// KrakenConfig holds exchange API credentials
type KrakenConfig struct {
	APIKey     string
	PrivateKey string
	BaseURL    string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type NotificationConfig struct {
	TelegramEnabled  bool
	TelegramBotToken string
	TelegramChatID   string
}

type LoggingConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Kraken: KrakenConfig{
			APIKey:     getEnvOrDefault("KRAKEN_API_KEY", ""),
			PrivateKey: getEnvOrDefault("KRAKEN_PRIVATE_KEY", ""),
			BaseURL:    getEnvOrDefault("KRAKEN_BASE_URL", "https://api.kraken.com"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "krakenbot"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Database: getEnvOrDefault("DB_NAME", "krakenbot"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvOrDefault("REDIS_ENABLED", "true") == "true",
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvIntOrDefault("REDIS_DB", 0),
		},
		Notification: NotificationConfig{
			TelegramEnabled:  getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true",
			TelegramBotToken: getEnvOrDefault("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:   getEnvOrDefault("TELEGRAM_CHAT_ID", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Pretty: getEnvOrDefault("LOG_PRETTY", "false") == "true",
		},
	}

	return cfg, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
