package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values used when nothing else is configured.
const (
	DefaultOutput     = "./merged_layers.json"
	DefaultLayersPath = "./layers"
	DefaultCatalogURL = "https://raw.githubusercontent.com/mitre/cti/master"
	DefaultAttackURL  = "https://attack.mitre.org"
	DefaultLegendHigh = "Most frequent"
	DefaultLegendLow  = "Least frequent"
)

// Config represents the application configuration
type Config struct {
	LogLevel      string        `yaml:"log_level"`
	Output        string        `yaml:"output"`
	OnInvalid     string        `yaml:"on_invalid"`
	MaxScoreFloor float64       `yaml:"max_score_floor"`
	LegendHigh    string        `yaml:"legend_high"`
	LegendLow     string        `yaml:"legend_low"`
	LayersPath    string        `yaml:"layers_path"`
	CachePath     string        `yaml:"cache_path"`
	CatalogURL    string        `yaml:"catalog_url"`
	AttackURL     string        `yaml:"attack_url"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	HTTPRetries   int           `yaml:"http_retries"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		LogLevel:      "info",
		Output:        DefaultOutput,
		MaxScoreFloor: 1,
		LegendHigh:    DefaultLegendHigh,
		LegendLow:     DefaultLegendLow,
		LayersPath:    DefaultLayersPath,
		CatalogURL:    DefaultCatalogURL,
		AttackURL:     DefaultAttackURL,
		HTTPTimeout:   30 * time.Second,
		HTTPRetries:   2,
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/navmerge/config.yaml (YAML)
// 4. Built-in defaults
func Load() (*Config, error) {
	cfg := Defaults()

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	if err := loadYAMLConfig(cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.CachePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.CachePath = filepath.Join(homeDir, ".local", "share", "navmerge", "catalog.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make a run meaningless.
func (c *Config) Validate() error {
	if c.MaxScoreFloor < 1 {
		return fmt.Errorf("max_score_floor must be at least 1, got %v", c.MaxScoreFloor)
	}
	if c.HTTPRetries < 0 {
		return fmt.Errorf("http_retries cannot be negative, got %d", c.HTTPRetries)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	switch c.OnInvalid {
	case "", "fail", "skip":
	default:
		return fmt.Errorf("invalid on_invalid %q: must be one of: fail, skip", c.OnInvalid)
	}
	return nil
}

// loadYAMLConfig loads configuration from ~/.config/navmerge/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "navmerge", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("NAVMERGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnvOrFile("NAVMERGE_OUTPUT", "NAVMERGE_OUTPUT_FILE"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("NAVMERGE_ON_INVALID"); v != "" {
		cfg.OnInvalid = v
	}
	if v := os.Getenv("NAVMERGE_LEGEND_HIGH"); v != "" {
		cfg.LegendHigh = v
	}
	if v := os.Getenv("NAVMERGE_LEGEND_LOW"); v != "" {
		cfg.LegendLow = v
	}
	if v := getEnvOrFile("NAVMERGE_LAYERS_PATH", "NAVMERGE_LAYERS_PATH_FILE"); v != "" {
		cfg.LayersPath = v
	}
	if v := getEnvOrFile("NAVMERGE_CACHE_PATH", "NAVMERGE_CACHE_PATH_FILE"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("NAVMERGE_CATALOG_URL"); v != "" {
		cfg.CatalogURL = v
	}
	if v := os.Getenv("NAVMERGE_ATTACK_URL"); v != "" {
		cfg.AttackURL = v
	}

	if v := os.Getenv("NAVMERGE_MAX_SCORE_FLOOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid NAVMERGE_MAX_SCORE_FLOOR %q: %w", v, err)
		}
		cfg.MaxScoreFloor = f
	}
	if v := os.Getenv("NAVMERGE_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid NAVMERGE_HTTP_TIMEOUT %q: %w", v, err)
		}
		cfg.HTTPTimeout = d
	}
	if v := os.Getenv("NAVMERGE_HTTP_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid NAVMERGE_HTTP_RETRIES %q: %w", v, err)
		}
		cfg.HTTPRetries = n
	}
	return nil
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
