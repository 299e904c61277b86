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

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BackendConfig struct {
	BaseURL        string        `yaml:"base_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ImageTimeout   time.Duration `yaml:"image_timeout"`
	VideoTimeout   time.Duration `yaml:"video_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	OutputDir      string        `yaml:"output_dir"`
}

type GPUConfig struct {
	BudgetMB      int     `yaml:"budget_mb"`
	ProfileAlpha  float64 `yaml:"profile_alpha"`  // EWMA smoothing for profile updates
	MaxConcurrent int     `yaml:"max_concurrent"` // hard ceiling on worker slots
}

type CacheConfig struct {
	MaxEntries int   `yaml:"max_entries"`
	MaxBytes   int64 `yaml:"max_bytes"`
}

type ReplenishConfig struct {
	TickInterval     time.Duration `yaml:"tick_interval"`
	Cooldown         time.Duration `yaml:"cooldown"`
	DailyCap         int           `yaml:"daily_cap"`
	BatchSize        int           `yaml:"batch_size"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	Enabled          bool          `yaml:"enabled"`

	// template for auto-enqueued dataset generations
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	ModelName      string `yaml:"model_name"`
	PromptTemplate string `yaml:"prompt_template"` // %s = subject id
	NegativePrompt string `yaml:"negative_prompt"`
}

type QualityConfig struct {
	SimilarityFloor float64 `yaml:"similarity_floor"`
	ClarityFloor    float64 `yaml:"clarity_floor"`
	ReferenceDir    string  `yaml:"reference_dir"` // per-subject reference images live under <dir>/<subject_id>/
}

type VisionConfig struct {
	OpenAIKey    string `yaml:"openai_key"`
	GeminiKey    string `yaml:"gemini_key"`
	GeminiURL    string `yaml:"gemini_url"`
	DefaultModel string `yaml:"default_model"`
}

type AlertConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	OperatorChatID int64  `yaml:"operator_chat_id"`
}

type WebConfig struct {
	Port       int           `yaml:"port"`
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	APIKey     string        `yaml:"api_key"` // bootstrap key to mint sessions
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Backend   BackendConfig   `yaml:"backend"`
	GPU       GPUConfig       `yaml:"gpu"`
	Cache     CacheConfig     `yaml:"cache"`
	Replenish ReplenishConfig `yaml:"replenish"`
	Quality   QualityConfig   `yaml:"quality"`
	Vision    VisionConfig    `yaml:"vision"`
	Alert     AlertConfig     `yaml:"alert"`
	Web       WebConfig       `yaml:"web"`

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

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Backend.PollInterval <= 0 {
		cfg.Backend.PollInterval = 500 * time.Millisecond
	}
	if cfg.Backend.ImageTimeout <= 0 {
		cfg.Backend.ImageTimeout = 2 * time.Minute
	}
	if cfg.Backend.VideoTimeout <= 0 {
		cfg.Backend.VideoTimeout = 10 * time.Minute
	}
	if cfg.Backend.RequestTimeout <= 0 {
		cfg.Backend.RequestTimeout = 15 * time.Second
	}
	if cfg.GPU.BudgetMB <= 0 {
		cfg.GPU.BudgetMB = 24576
	}
	if cfg.GPU.ProfileAlpha <= 0 || cfg.GPU.ProfileAlpha > 1 {
		cfg.GPU.ProfileAlpha = 0.2
	}
	if cfg.GPU.MaxConcurrent <= 0 {
		cfg.GPU.MaxConcurrent = 4
	}
	if cfg.Cache.MaxEntries <= 0 {
		cfg.Cache.MaxEntries = 512
	}
	if cfg.Cache.MaxBytes <= 0 {
		cfg.Cache.MaxBytes = 4 << 30 // 4 GiB
	}
	if cfg.Replenish.TickInterval <= 0 {
		cfg.Replenish.TickInterval = 30 * time.Second
	}
	if cfg.Replenish.Cooldown <= 0 {
		cfg.Replenish.Cooldown = 5 * time.Minute
	}
	if cfg.Replenish.DailyCap <= 0 {
		cfg.Replenish.DailyCap = 50
	}
	if cfg.Replenish.BatchSize <= 0 {
		cfg.Replenish.BatchSize = 4
	}
	if cfg.Replenish.BreakerThreshold <= 0 {
		cfg.Replenish.BreakerThreshold = 5
	}
	if cfg.Replenish.Width <= 0 {
		cfg.Replenish.Width = 768
	}
	if cfg.Replenish.Height <= 0 {
		cfg.Replenish.Height = 768
	}
	if cfg.Replenish.PromptTemplate == "" {
		cfg.Replenish.PromptTemplate = "portrait of %s, solo, detailed"
	}
	if cfg.Quality.SimilarityFloor <= 0 {
		cfg.Quality.SimilarityFloor = 0.72
	}
	if cfg.Quality.ClarityFloor <= 0 {
		cfg.Quality.ClarityFloor = 0.5
	}
	if cfg.Vision.DefaultModel == "" {
		cfg.Vision.DefaultModel = "gpt-4o-mini"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8188
	}
	if cfg.Web.SessionTTL <= 0 {
		cfg.Web.SessionTTL = 30 * time.Minute
	}

	// Minimal validation
	if cfg.Backend.BaseURL == "" {
		return nil, errors.New("backend.base_url is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
