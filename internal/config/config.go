package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит все настройки процесса движка
type Config struct {
	Coinbase CoinbaseConfig
	Telegram TelegramConfig
	Database DatabaseConfig
	Engine   EngineConfig
	LogLevel string
}

type CoinbaseConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
	// Максимум запросов к API в секунду
	RateLimit float64
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
	AdminIDs string
}

type DatabaseConfig struct {
	// URL пуст — архив в Postgres выключен, источником истины остаются файлы
	URL string
}

type EngineConfig struct {
	HubDir            string
	SignalsDir        string
	SweepInterval     time.Duration
	BrokerTimeout     time.Duration
	OrderPollInterval time.Duration
	OrderMaxWait      time.Duration
	SignalMaxAge      time.Duration
	AuditLogMaxLines  int
	HistoryMaxLines   int
	MetricsAddr       string
}

// Load загружает конфигурацию из .env файла и окружения
func Load() (*Config, error) {
	// .env опционален — в проде переменные приходят из окружения
	_ = godotenv.Load()

	sweepInterval, err := getEnvDuration("SWEEP_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}
	brokerTimeout, err := getEnvDuration("BROKER_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getEnvDuration("ORDER_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}
	maxWait, err := getEnvDuration("ORDER_MAX_WAIT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	signalMaxAge, err := getEnvDuration("SIGNAL_MAX_AGE", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	auditMaxLines, err := getEnvInt("AUDIT_LOG_MAX_LINES", 500)
	if err != nil {
		return nil, err
	}
	historyMaxLines, err := getEnvInt("HISTORY_MAX_LINES", 5000)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvFloat("COINBASE_RATE_LIMIT", 5)
	if err != nil {
		return nil, err
	}
	chatID, err := getEnvInt64("TELEGRAM_CHAT_ID", 0)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Coinbase: CoinbaseConfig{
			APIKey:    os.Getenv("COINBASE_API_KEY"),
			APISecret: os.Getenv("COINBASE_API_SECRET"),
			BaseURL:   getEnv("COINBASE_BASE_URL", "https://api.coinbase.com"),
			RateLimit: rateLimit,
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   chatID,
			AdminIDs: os.Getenv("TELEGRAM_ADMIN_IDS"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Engine: EngineConfig{
			HubDir:            getEnv("POWERTRADER_HUB_DIR", "hub_data"),
			SignalsDir:        getEnv("POWERTRADER_SIGNALS_DIR", "signal_data"),
			SweepInterval:     sweepInterval,
			BrokerTimeout:     brokerTimeout,
			OrderPollInterval: pollInterval,
			OrderMaxWait:      maxWait,
			SignalMaxAge:      signalMaxAge,
			AuditLogMaxLines:  auditMaxLines,
			HistoryMaxLines:   historyMaxLines,
			MetricsAddr:       getEnv("METRICS_ADDR", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if c.Coinbase.APIKey == "" {
		return fmt.Errorf("COINBASE_API_KEY is required")
	}
	if c.Coinbase.APISecret == "" {
		return fmt.Errorf("COINBASE_API_SECRET is required")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if c.Engine.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.Engine.BrokerTimeout <= 0 {
		return fmt.Errorf("BROKER_TIMEOUT must be positive")
	}
	return nil
}

// TelegramEnabled сообщает, сконфигурирован ли операторский бот
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
