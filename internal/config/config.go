package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix marks environment variables that override config keys,
// e.g. ANIREC_MODEL_EPOCHS -> model.epochs.
const EnvPrefix = "ANIREC_"

// Config is the application's configuration model.
type Config struct {
	Account    AccountConfig    `yaml:"account" koanf:"account"`
	Lists      ListsConfig      `yaml:"lists" koanf:"lists"`
	AniList    AniListConfig    `yaml:"anilist" koanf:"anilist"`
	Model      ModelConfig      `yaml:"model" koanf:"model"`
	Evaluation EvaluationConfig `yaml:"evaluation" koanf:"evaluation"`
	Storage    StorageConfig    `yaml:"storage" koanf:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics" koanf:"metrics"`
	Logging    LoggingConfig    `yaml:"logging" koanf:"logging"`
}

type AccountConfig struct {
	Username string `yaml:"username" koanf:"username"`
}

type ListsConfig struct {
	// Rated list the model is trained and evaluated on.
	Training string `yaml:"training" koanf:"training" validate:"required"`
	// List scored after training, e.g. "Planning".
	Inference string `yaml:"inference" koanf:"inference" validate:"required"`
	// User-defined list name, optional.
	Custom string `yaml:"custom" koanf:"custom"`
}

type AniListConfig struct {
	Endpoint string `yaml:"endpoint" koanf:"endpoint" validate:"required,url"`
	// Optional OAuth token. If empty, read from env ANILIST_TOKEN
	Token       string        `yaml:"token" koanf:"token"`
	Timeout     time.Duration `yaml:"timeout" koanf:"timeout" validate:"gt=0"`
	RPS         float64       `yaml:"rps" koanf:"rps" validate:"gt=0"`
	Burst       int           `yaml:"burst" koanf:"burst" validate:"gt=0"`
	MaxAttempts int           `yaml:"max_attempts" koanf:"max_attempts" validate:"gt=0"`
	BaseBackoff time.Duration `yaml:"base_backoff" koanf:"base_backoff" validate:"gt=0"`
	// Response cache directory; empty keeps the cache in memory.
	CacheDir string        `yaml:"cache_dir" koanf:"cache_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl" koanf:"cache_ttl"`
}

type ModelConfig struct {
	Backend      string  `yaml:"backend" koanf:"backend" validate:"oneof=dense external"`
	BinaryPath   string  `yaml:"binary_path" koanf:"binary_path" validate:"required_if=Backend external"`
	ModelPath    string  `yaml:"model_path" koanf:"model_path"`
	HiddenUnits  int     `yaml:"hidden_units" koanf:"hidden_units" validate:"gt=0"`
	Epochs       int     `yaml:"epochs" koanf:"epochs" validate:"gt=0"`
	BatchSize    int     `yaml:"batch_size" koanf:"batch_size" validate:"gt=0"`
	Algorithm    string  `yaml:"learning_algorithm" koanf:"learning_algorithm" validate:"oneof=adam sgd"`
	LearningRate float64 `yaml:"learning_rate" koanf:"learning_rate" validate:"gt=0"`
	Shuffle      bool    `yaml:"shuffle" koanf:"shuffle"`
	Seed         int64   `yaml:"seed" koanf:"seed"`
}

type EvaluationConfig struct {
	// Raw-scale window for tolerance accuracy.
	Tolerance float64 `yaml:"tolerance" koanf:"tolerance" validate:"gt=0"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path" koanf:"db_path"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" koanf:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" koanf:"format" validate:"omitempty,oneof=json console"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Lists: ListsConfig{Training: "Completed", Inference: "Planning"},
		AniList: AniListConfig{
			Endpoint:    "https://graphql.anilist.co",
			Timeout:     15 * time.Second,
			RPS:         1.5,
			Burst:       5,
			MaxAttempts: 5,
			BaseBackoff: 500 * time.Millisecond,
			CacheTTL:    6 * time.Hour,
		},
		Model: ModelConfig{
			Backend:      "dense",
			HiddenUnits:  500,
			Epochs:       500,
			BatchSize:    32,
			Algorithm:    "adam",
			LearningRate: 0.001,
			Shuffle:      true,
			Seed:         1,
		},
		Evaluation: EvaluationConfig{Tolerance: 10},
		Storage:    StorageConfig{DBPath: "./anirec.db"},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
	}
}

// ResolveEnv fills in secrets from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.AniList.Token == "" {
		c.AniList.Token = os.Getenv("ANILIST_TOKEN")
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// Load layers defaults, the YAML file at path, a .env file in the working
// directory and ANIREC_* environment variables, in that order.
func Load(path string) (Config, error) {
	var cfg Config
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return cfg, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return cfg, fmt.Errorf("load environment: %w", err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ResolveEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey maps ANIREC_MODEL_HIDDEN_UNITS to model.hidden_units.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
