package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token string `yaml:"token"`
		// чат, куда /send публикует карточку сигнала в режиме LIVE
		TargetGroupID int64 `yaml:"target_group_id"`
		// стартовый режим: LIVE | TEST
		Mode string `yaml:"mode"`
		// в LIVE спрашивать подтверждение перед публикацией /send
		ConfirmSend    bool          `yaml:"confirm_send"`
		ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	} `yaml:"telegram"`

	Service struct {
		Host       string `yaml:"host"`
		PublicPort int    `yaml:"public_port"`
	} `yaml:"service"`

	Log struct {
		Dir   string `yaml:"dir"`
		Debug bool   `yaml:"debug"`
	} `yaml:"log"`

	Engine struct {
		PollInterval  time.Duration `yaml:"poll_interval"`
		FetchTimeout  time.Duration `yaml:"fetch_timeout"`
		Concurrency   int           `yaml:"concurrency"`
		NotifyQueue   int           `yaml:"notify_queue"`
		NotifyWorkers int           `yaml:"notify_workers"`
		NotifyTimeout time.Duration `yaml:"notify_timeout"`
	} `yaml:"engine"`

	Price struct {
		// mexc | mexc_ws | binance
		Source     string        `yaml:"source"`
		StaleAfter time.Duration `yaml:"stale_after"`
		// пары, которые опрашиваются при старте для проверки источника
		WarmupPairs []string `yaml:"warmup_pairs"`
	} `yaml:"price"`

	Mexc struct {
		APIKey       string        `yaml:"api_key"`
		SecretKey    string        `yaml:"secret_key"`
		SyncInterval time.Duration `yaml:"sync_interval"`
	} `yaml:"mexc"`

	Binance struct {
		APIKey    string `yaml:"api_key"`
		SecretKey string `yaml:"secret_key"`
	} `yaml:"binance"`

	Ledger struct {
		// memory | postgres | sqlite
		Driver    string        `yaml:"driver"`
		SQLite    string        `yaml:"sqlite_path"`
		Retention time.Duration `yaml:"retention"`
	} `yaml:"ledger"`
	DB string `yaml:"db_dsn"`

	Recap struct {
		At         string        `yaml:"at"`
		BriefingAt string        `yaml:"briefing_at"`
		Window     time.Duration `yaml:"window"`
		Location   string        `yaml:"location"`
	} `yaml:"recap"`

	Tracing struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"tracing"`
}

func defaults() Config {
	var c Config
	c.Telegram.Mode = "TEST"
	c.Telegram.ConfirmTimeout = 2 * time.Minute
	c.Service.PublicPort = 8080
	c.Log.Dir = "logs"
	c.Engine.PollInterval = 5 * time.Second
	c.Engine.FetchTimeout = 4 * time.Second
	c.Engine.Concurrency = 8
	c.Engine.NotifyQueue = 256
	c.Engine.NotifyWorkers = 2
	c.Engine.NotifyTimeout = 10 * time.Second
	c.Price.Source = "mexc"
	c.Price.StaleAfter = 15 * time.Second
	c.Price.WarmupPairs = []string{"BTC_USDT", "ETH_USDT"}
	c.Mexc.SyncInterval = 10 * time.Second
	c.Ledger.Driver = "memory"
	c.Ledger.SQLite = "data/ledger.db"
	c.Ledger.Retention = 7 * 24 * time.Hour
	c.Recap.At = "23:59"
	c.Recap.BriefingAt = "08:00"
	c.Recap.Window = 24 * time.Hour
	c.Recap.Location = "Local"
	c.Tracing.Port = 6831
	return c
}

func NewConfig() (*Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")
	return Load(filepath.Join("configs", configFileName))
}

// Load reads path over the defaults and applies env overrides. A missing
// file leaves the defaults in place.
func Load(path string) (*Config, error) {
	config := defaults()

	file, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open config: %w", err)
	default:
		defer func() {
			_ = file.Close()
		}()
		if err := yaml.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	applyEnv(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyEnv(c *Config) {
	c.Telegram.Token = getenvDefault(tokenTelegramENV, c.Telegram.Token)
	c.Telegram.TargetGroupID = int64FromEnv("TARGET_GROUP_ID", c.Telegram.TargetGroupID)
	c.Telegram.Mode = strings.ToUpper(getenvDefault("BOT_MODE", c.Telegram.Mode))
	c.Telegram.ConfirmSend = boolFromEnv("CONFIRM_SEND", c.Telegram.ConfirmSend)
	c.DB = getenvDefault(databaseDSN, c.DB)

	c.Service.PublicPort = intFromEnv("PUBLIC_PORT", c.Service.PublicPort)
	c.Log.Dir = getenvDefault("LOG_DIR", c.Log.Dir)
	c.Log.Debug = boolFromEnv("LOG_DEBUG", c.Log.Debug)

	c.Engine.PollInterval = durationFromEnv("POLL_INTERVAL", c.Engine.PollInterval)
	c.Engine.FetchTimeout = durationFromEnv("FETCH_TIMEOUT", c.Engine.FetchTimeout)
	c.Engine.Concurrency = intFromEnv("PRICE_CONCURRENCY", c.Engine.Concurrency)

	c.Price.Source = strings.ToLower(getenvDefault("PRICE_SOURCE", c.Price.Source))
	if v := os.Getenv("WARMUP_PAIRS"); v != "" {
		c.Price.WarmupPairs = strings.Split(v, ",")
	}
	c.Mexc.APIKey = getenvDefault("MEXC_API_KEY", c.Mexc.APIKey)
	c.Mexc.SecretKey = getenvDefault("MEXC_SECRET_KEY", c.Mexc.SecretKey)
	c.Mexc.SyncInterval = durationFromEnv("POSITION_SYNC_INTERVAL", c.Mexc.SyncInterval)
	c.Binance.APIKey = getenvDefault("BINANCE_API_KEY", c.Binance.APIKey)
	c.Binance.SecretKey = getenvDefault("BINANCE_SECRET_KEY", c.Binance.SecretKey)

	c.Ledger.Driver = strings.ToLower(getenvDefault("LEDGER_DRIVER", c.Ledger.Driver))
	c.Ledger.SQLite = getenvDefault("LEDGER_SQLITE_PATH", c.Ledger.SQLite)
	c.Ledger.Retention = durationFromEnv("LEDGER_RETENTION", c.Ledger.Retention)

	c.Recap.At = getenvDefault("RECAP_AT", c.Recap.At)
	c.Recap.BriefingAt = getenvDefault("BRIEFING_AT", c.Recap.BriefingAt)
	c.Recap.Location = getenvDefault("RECAP_TZ", c.Recap.Location)

	c.Tracing.Host = getenvDefault("JAEGER_HOST", c.Tracing.Host)
	c.Tracing.Port = intFromEnv("JAEGER_PORT", c.Tracing.Port)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive, got %s", c.Engine.PollInterval)
	}
	if c.Engine.FetchTimeout <= 0 {
		return fmt.Errorf("engine.fetch_timeout must be positive, got %s", c.Engine.FetchTimeout)
	}
	if c.Engine.Concurrency <= 0 {
		c.Engine.Concurrency = 1
	}
	switch c.Telegram.Mode {
	case "LIVE", "TEST":
	default:
		return fmt.Errorf("telegram.mode must be LIVE or TEST, got %q", c.Telegram.Mode)
	}
	switch c.Price.Source {
	case "mexc", "mexc_ws", "binance":
	default:
		return fmt.Errorf("price.source %q is not supported", c.Price.Source)
	}
	switch c.Ledger.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.DB == "" {
			return errors.New("ledger.driver=postgres needs db_dsn or DATABASE_DSN")
		}
	default:
		return fmt.Errorf("ledger.driver %q is not supported", c.Ledger.Driver)
	}
	if _, err := time.LoadLocation(c.Recap.Location); err != nil {
		return fmt.Errorf("recap.location: %w", err)
	}
	return nil
}

// RecapLocation is the zone recap times are read in.
func (c *Config) RecapLocation() *time.Location {
	loc, err := time.LoadLocation(c.Recap.Location)
	if err != nil {
		return time.Local
	}
	return loc
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func int64FromEnv(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
