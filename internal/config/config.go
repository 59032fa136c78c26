package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	QueueKey string `yaml:"queue_key"`
}

type BackendConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	GeminiKey    string        `yaml:"gemini_key"`
	GeminiModel  string        `yaml:"gemini_model"`
	CallTimeout  time.Duration `yaml:"call_timeout"`  // per submit/poll HTTP call
	PollInterval time.Duration `yaml:"poll_interval"` // spacing between polls
	PollAttempts int           `yaml:"poll_attempts"` // max polls per job
	PollBudget   time.Duration `yaml:"poll_budget"`   // aggregate wall-clock cap
}

type StorageConfig struct {
	Kind      string `yaml:"kind"` // s3 | fs
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"` // "" for real S3; set for R2/MinIO
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PublicURL string `yaml:"public_url"`
	Dir       string `yaml:"dir"` // fs kind only
}

type BusConfig struct {
	KeepAlive  time.Duration `yaml:"keepalive"`   // heartbeat cadence
	BufferSize int           `yaml:"buffer_size"` // per-subscriber channel depth
}

type WorkerConfig struct {
	Count        int           `yaml:"count"`         // concurrent workers
	IdleInterval time.Duration `yaml:"idle_interval"` // queue re-check spacing
	Retention    time.Duration `yaml:"retention"`     // terminal job retention
	SweepEvery   time.Duration `yaml:"sweep_every"`
}

type ContextConfig struct {
	IdleTTL time.Duration `yaml:"idle_ttl"` // conversation context eviction
}

type BillingConfig struct {
	ImageCost     int64 `yaml:"image_cost"`
	CompanionCost int64 `yaml:"companion_cost"`
	ChatCost      int64 `yaml:"chat_cost"`
}

type RateLimitConfig struct {
	SubmitPerMinute int `yaml:"submit_per_minute"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Backend   BackendConfig   `yaml:"backend"`
	Storage   StorageConfig   `yaml:"storage"`
	Bus       BusConfig       `yaml:"bus"`
	Worker    WorkerConfig    `yaml:"worker"`
	Context   ContextConfig   `yaml:"context"`
	Billing   BillingConfig   `yaml:"billing"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if !dev && cfg.Server.JWTSecret == "" {
		return nil, errors.New("server.jwt_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.QueueKey == "" {
		cfg.Redis.QueueKey = "generation:queue"
	}
	if cfg.Backend.CallTimeout <= 0 {
		cfg.Backend.CallTimeout = 15 * time.Second
	}
	if cfg.Backend.PollInterval <= 0 {
		cfg.Backend.PollInterval = 3 * time.Second
	}
	if cfg.Backend.PollAttempts <= 0 {
		cfg.Backend.PollAttempts = 25
	}
	if cfg.Backend.PollBudget <= 0 {
		cfg.Backend.PollBudget = 2 * time.Minute
	}
	if cfg.Storage.Kind == "" {
		cfg.Storage.Kind = "fs"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "artifacts"
	}
	if cfg.Bus.KeepAlive <= 0 {
		cfg.Bus.KeepAlive = 30 * time.Second
	}
	if cfg.Bus.BufferSize <= 0 {
		cfg.Bus.BufferSize = 16
	}
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Worker.IdleInterval <= 0 {
		cfg.Worker.IdleInterval = 500 * time.Millisecond
	}
	if cfg.Worker.Retention <= 0 {
		cfg.Worker.Retention = 24 * time.Hour
	}
	if cfg.Worker.SweepEvery <= 0 {
		cfg.Worker.SweepEvery = time.Hour
	}
	if cfg.Context.IdleTTL <= 0 {
		cfg.Context.IdleTTL = 30 * time.Minute
	}
	if cfg.Billing.ImageCost <= 0 {
		cfg.Billing.ImageCost = 5
	}
	if cfg.Billing.CompanionCost <= 0 {
		cfg.Billing.CompanionCost = 10
	}
	if cfg.Billing.ChatCost <= 0 {
		cfg.Billing.ChatCost = 1
	}
	if cfg.RateLimit.SubmitPerMinute <= 0 {
		cfg.RateLimit.SubmitPerMinute = 10
	}
}
