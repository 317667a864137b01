package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		MonitoringPort     int      `mapstructure:"monitoring_port"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	} `mapstructure:"server"`

	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
	} `mapstructure:"database"`

	JWT struct {
		Secret string `mapstructure:"secret"`
		Issuer string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`

	Kafka struct {
		Broker string `mapstructure:"broker"`
		Topic  string `mapstructure:"topic"`
	} `mapstructure:"kafka"`

	Settlement struct {
		// Minor-unit exponent for the tenant currency (0 for IDR).
		CurrencyExponent int32 `mapstructure:"currency_exponent"`
	} `mapstructure:"settlement"`

	Reminder struct {
		// Days before due date on which a reminder is scheduled.
		OffsetsDays  []int    `mapstructure:"offsets_days"`
		Channels     []string `mapstructure:"channels"`
		ScanInterval int      `mapstructure:"scan_interval_minutes"`
	} `mapstructure:"reminder"`

	Webhook struct {
		MaxAttempts       int `mapstructure:"max_attempts"`
		BaseBackoffSec    int `mapstructure:"base_backoff_seconds"`
		MaxBackoffSec     int `mapstructure:"max_backoff_seconds"`
		AttemptTimeoutSec int `mapstructure:"attempt_timeout_seconds"`
		PollIntervalSec   int `mapstructure:"poll_interval_seconds"`
	} `mapstructure:"webhook"`

	Outbox struct {
		PollIntervalSec int `mapstructure:"poll_interval_seconds"`
		BatchSize       int `mapstructure:"batch_size"`
	} `mapstructure:"outbox"`

	ReferrerDirectory struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"referrer_directory"`
}

func Load() *Config {
	// Load .env file if exists (ignore error in production)
	godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile("configs/config.yaml")
	v.AutomaticEnv()

	// Sensible defaults so the binary works without a config file
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.monitoring_port", 9090)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "umrah_db")
	v.SetDefault("jwt.issuer", "umrah-backend")
	v.SetDefault("settlement.currency_exponent", 0)
	v.SetDefault("reminder.offsets_days", []int{7, 3, 1})
	v.SetDefault("reminder.channels", []string{"whatsapp"})
	v.SetDefault("reminder.scan_interval_minutes", 60)
	v.SetDefault("webhook.max_attempts", 8)
	v.SetDefault("webhook.base_backoff_seconds", 30)
	v.SetDefault("webhook.max_backoff_seconds", 3600)
	v.SetDefault("webhook.attempt_timeout_seconds", 10)
	v.SetDefault("webhook.poll_interval_seconds", 5)
	v.SetDefault("outbox.poll_interval_seconds", 2)
	v.SetDefault("outbox.batch_size", 100)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		log.Printf("[Config] No config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("config unmarshal error: %v", err)
	}

	// Override database settings from DB_* environment variables
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Database.Port = n
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.Name = name
	}

	if cfg.JWT.Secret == "" || cfg.JWT.Secret == "${JWT_SECRET}" {
		cfg.JWT.Secret = os.Getenv("JWT_SECRET")
		if cfg.JWT.Secret == "" {
			log.Fatal("JWT_SECRET not found in environment or config file")
		}
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if broker := os.Getenv("KAFKA_BROKER"); broker != "" {
		cfg.Kafka.Broker = broker
	}

	return &cfg
}
