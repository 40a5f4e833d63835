package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	App      AppConfig      `toml:"app"`
	Auth     AuthConfig     `toml:"auth"`
	LLM      LLMConfig      `toml:"llm"`
	Storage  StorageConfig  `toml:"storage"`
	MySQL    MySQLConfig    `toml:"mysql"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Mongo    MongoConfig    `toml:"mongo"`
	Redis    RedisConfig    `toml:"redis"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
	Log      LogConfig      `toml:"log"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
	// ID partitions stored records between deployments sharing a backend.
	ID                      string `toml:"id"`
	AssistantIdleTTLMinutes int    `toml:"assistant_idle_ttl_minutes"`
	MaxUploadMB             int    `toml:"max_upload_mb"`
	MaxPDFChars             int    `toml:"max_pdf_chars"`
}

type AuthConfig struct {
	JWTSecret       string `toml:"jwt_secret"`
	JWTExpireMinute int    `toml:"jwt_expire_minute"`
}

type LLMConfig struct {
	// Provider picks the wire format: gemini generateContent or openai chat/completions.
	Provider              string  `toml:"provider"`
	BaseURL               string  `toml:"base_url"`
	APIKey                string  `toml:"api_key"`
	Model                 string  `toml:"model"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	MaxAttempts           int     `toml:"max_attempts"`
	BaseDelayMillis       int     `toml:"base_delay_millis"`
	RateLimit             float64 `toml:"rate_limit"`
	RateBurst             int     `toml:"rate_burst"`
}

type StorageConfig struct {
	Driver string `toml:"driver"`
	// HistoryLimit caps the entries of the /history page; zero lists all.
	// Subscriptions always carry the whole partition.
	HistoryLimit int `toml:"history_limit"`
}

type MySQLConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DB           string `toml:"db"`
	Params       string `toml:"params"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

type SQLiteConfig struct {
	Path string `toml:"path"`
}

type MongoConfig struct {
	URI         string `toml:"uri"`
	Database    string `toml:"database"`
	MaxPoolSize uint64 `toml:"max_pool_size"`
}

type RedisConfig struct {
	// Addr may list several comma separated nodes; empty disables the cache.
	Addr                   string `toml:"addr"`
	Password               string `toml:"password"`
	DB                     int    `toml:"db"`
	HistoryTTLSeconds      int    `toml:"history_ttl_seconds"`
	HistoryDirtyTTLSeconds int    `toml:"history_dirty_ttl_seconds"`
}

type RabbitMQConfig struct {
	// URL empty disables the cross-instance change feed.
	URL            string `toml:"url"`
	ChangeExchange string `toml:"change_exchange"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Load reads .env (if present), the TOML file named by CONFIG_FILE, and
// environment overrides, in that order.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env failed: %w", err)
	}

	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMySQL, DriverSQLite, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.LLM.Provider {
	case "", ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if strings.TrimSpace(c.App.ID) == "" {
		return errors.New("app.id must not be empty")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret must not be empty")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.DB,
		c.MySQL.Params,
	)
}

func (c *Config) JWTExpiration() time.Duration {
	return time.Duration(c.Auth.JWTExpireMinute) * time.Minute
}

func (c *Config) AssistantIdleTTL() time.Duration {
	return time.Duration(c.App.AssistantIdleTTLMinutes) * time.Minute
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.App.MaxUploadMB) << 20
}

func (c *Config) HistoryTTL() time.Duration {
	return time.Duration(c.Redis.HistoryTTLSeconds) * time.Second
}

func (c *Config) HistoryDirtyTTL() time.Duration {
	return time.Duration(c.Redis.HistoryDirtyTTLSeconds) * time.Second
}

func (c *Config) LLMRequestTimeout() time.Duration {
	return time.Duration(c.LLM.RequestTimeoutSeconds) * time.Second
}

func (c *Config) LLMBaseDelay() time.Duration {
	return time.Duration(c.LLM.BaseDelayMillis) * time.Millisecond
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:                    "gopherai-assistant",
			Env:                     "dev",
			Host:                    "0.0.0.0",
			Port:                    8080,
			GinMode:                 "debug",
			ID:                      "default-app-id",
			AssistantIdleTTLMinutes: 30,
			MaxUploadMB:             10,
			MaxPDFChars:             30000,
		},
		Auth: AuthConfig{
			JWTSecret:       "change-me-in-production",
			JWTExpireMinute: 24 * 60,
		},
		LLM: LLMConfig{
			Provider:              ProviderGemini,
			BaseURL:               "https://generativelanguage.googleapis.com/v1beta",
			Model:                 "gemini-2.0-flash",
			RequestTimeoutSeconds: 90,
			MaxAttempts:           5,
			BaseDelayMillis:       1000,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
		},
		MySQL: MySQLConfig{
			Host:         "127.0.0.1",
			Port:         3306,
			User:         "root",
			DB:           "gopherai_assistant",
			Params:       "parseTime=true&loc=UTC&charset=utf8mb4",
			MaxOpenConns: 50,
			MaxIdleConns: 10,
		},
		SQLite: SQLiteConfig{
			Path: "data/assistant.db",
		},
		Mongo: MongoConfig{
			URI:         "mongodb://127.0.0.1:27017",
			Database:    "gopherai_assistant",
			MaxPoolSize: 50,
		},
		Redis: RedisConfig{
			HistoryTTLSeconds:      60,
			HistoryDirtyTTLSeconds: 5,
		},
		RabbitMQ: RabbitMQConfig{
			ChangeExchange: "assistant.interactions",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)
	cfg.App.ID = getEnv("APP_ID", cfg.App.ID)
	cfg.App.AssistantIdleTTLMinutes = getEnvAsInt("APP_ASSISTANT_IDLE_TTL_MINUTES", cfg.App.AssistantIdleTTLMinutes)
	cfg.App.MaxUploadMB = getEnvAsInt("APP_MAX_UPLOAD_MB", cfg.App.MaxUploadMB)
	cfg.App.MaxPDFChars = getEnvAsInt("APP_MAX_PDF_CHARS", cfg.App.MaxPDFChars)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpireMinute = getEnvAsInt("JWT_EXPIRE_MINUTE", cfg.Auth.JWTExpireMinute)

	cfg.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLM.Provider))
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.RequestTimeoutSeconds = getEnvAsInt("LLM_REQUEST_TIMEOUT_SECONDS", cfg.LLM.RequestTimeoutSeconds)
	cfg.LLM.MaxAttempts = getEnvAsInt("LLM_MAX_ATTEMPTS", cfg.LLM.MaxAttempts)
	cfg.LLM.BaseDelayMillis = getEnvAsInt("LLM_BASE_DELAY_MILLIS", cfg.LLM.BaseDelayMillis)
	cfg.LLM.RateLimit = getEnvAsFloat("LLM_RATE_LIMIT", cfg.LLM.RateLimit)
	cfg.LLM.RateBurst = getEnvAsInt("LLM_RATE_BURST", cfg.LLM.RateBurst)

	cfg.Storage.Driver = strings.ToLower(getEnv("STORAGE_DRIVER", cfg.Storage.Driver))
	cfg.Storage.HistoryLimit = getEnvAsInt("STORAGE_HISTORY_LIMIT", cfg.Storage.HistoryLimit)

	cfg.MySQL.Host = getEnv("MYSQL_HOST", cfg.MySQL.Host)
	cfg.MySQL.Port = getEnvAsInt("MYSQL_PORT", cfg.MySQL.Port)
	cfg.MySQL.User = getEnv("MYSQL_USER", cfg.MySQL.User)
	cfg.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.MySQL.Password)
	cfg.MySQL.DB = getEnv("MYSQL_DB", cfg.MySQL.DB)
	cfg.MySQL.Params = getEnv("MYSQL_PARAMS", cfg.MySQL.Params)

	cfg.SQLite.Path = getEnv("SQLITE_PATH", cfg.SQLite.Path)

	cfg.Mongo.URI = getEnv("MONGO_URI", cfg.Mongo.URI)
	cfg.Mongo.Database = getEnv("MONGO_DATABASE", cfg.Mongo.Database)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.HistoryTTLSeconds = getEnvAsInt("REDIS_HISTORY_TTL_SECONDS", cfg.Redis.HistoryTTLSeconds)
	cfg.Redis.HistoryDirtyTTLSeconds = getEnvAsInt("REDIS_HISTORY_DIRTY_TTL_SECONDS", cfg.Redis.HistoryDirtyTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.ChangeExchange = getEnv("RABBITMQ_CHANGE_EXCHANGE", cfg.RabbitMQ.ChangeExchange)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
