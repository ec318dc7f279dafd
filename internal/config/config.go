package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avasilenko/rulegen/internal/rules"
	"github.com/avasilenko/rulegen/internal/storage"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    time.Duration `yaml:"read_header_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	EnableRequestLogging bool          `yaml:"enable_request_logging"`
	RateLimitRPS         float64       `yaml:"-"`
	RateLimitBurst       int           `yaml:"-"`
	Build                rules.Settings
	InitialTransforms    map[string]rules.Transform
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string                     `yaml:"port"`
	ShutdownGracePeriod  string                     `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string                     `yaml:"read_header_timeout"`
	WriteTimeout         string                     `yaml:"write_timeout"`
	IdleTimeout          string                     `yaml:"idle_timeout"`
	EnableRequestLogging bool                       `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit              `yaml:"rate_limit"`
	Build                *rules.Settings            `yaml:"build"`
	Transforms           map[string]rules.Transform `yaml:"transforms"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	Production     *bool
	AssetDir       *string
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Load from YAML file if specified
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		applyYAMLConfig(&cfg, yamlCfg)
	}

	// Apply environment variables (override YAML)
	applyEnvConfig(&cfg)

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		Build:                rules.DefaultSettings(),
		InitialTransforms:    storage.DefaultTransforms(),
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	if yamlCfg.ShutdownGracePeriod != "" {
		if d, err := time.ParseDuration(yamlCfg.ShutdownGracePeriod); err == nil {
			cfg.ShutdownGracePeriod = d
		}
	}

	if yamlCfg.ReadHeaderTimeout != "" {
		if d, err := time.ParseDuration(yamlCfg.ReadHeaderTimeout); err == nil {
			cfg.ReadHeaderTimeout = d
		}
	}

	if yamlCfg.WriteTimeout != "" {
		if d, err := time.ParseDuration(yamlCfg.WriteTimeout); err == nil {
			cfg.WriteTimeout = d
		}
	}

	if yamlCfg.IdleTimeout != "" {
		if d, err := time.ParseDuration(yamlCfg.IdleTimeout); err == nil {
			cfg.IdleTimeout = d
		}
	}

	cfg.EnableRequestLogging = yamlCfg.EnableRequestLogging

	if yamlCfg.RateLimit.RPS >= 0 {
		cfg.RateLimitRPS = yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst >= 0 {
		cfg.RateLimitBurst = yamlCfg.RateLimit.Burst
	}

	if yamlCfg.Build != nil {
		applyBuildSettings(&cfg.Build, *yamlCfg.Build)
	}

	if len(yamlCfg.Transforms) > 0 {
		cfg.InitialTransforms = yamlCfg.Transforms
	}
}

// applyBuildSettings overlays the fields set in the YAML build section.
func applyBuildSettings(dst *rules.Settings, src rules.Settings) {
	if src.ExcludeDirs != nil {
		dst.ExcludeDirs = src.ExcludeDirs
	}
	if src.BabelPresets != nil {
		dst.BabelPresets = src.BabelPresets
	}
	if src.BabelPlugins != nil {
		dst.BabelPlugins = src.BabelPlugins
	}
	if src.PostcssPlugins != nil {
		dst.PostcssPlugins = src.PostcssPlugins
	}
	if src.AssetDir != "" {
		dst.AssetDir = src.AssetDir
	}
	if src.InlineLimit > 0 {
		dst.InlineLimit = src.InlineLimit
	}
	if len(src.ScriptExtensions) > 0 {
		dst.ScriptExtensions = src.ScriptExtensions
	}
	dst.Production = src.Production
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if env := strings.TrimSpace(os.Getenv("BUILD_ENV")); env != "" {
		cfg.Build.Production = strings.EqualFold(env, "production")
	}

	if dir := strings.TrimSpace(os.Getenv("ASSET_DIR")); dir != "" {
		cfg.Build.AssetDir = dir
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.Production != nil {
		cfg.Build.Production = *overrides.Production
	}

	if overrides.AssetDir != nil && *overrides.AssetDir != "" {
		cfg.Build.AssetDir = *overrides.AssetDir
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if len(cfg.InitialTransforms) == 0 {
		return fmt.Errorf("transform registry cannot be empty")
	}
	for key := range cfg.InitialTransforms {
		if err := rules.ValidateKey(key); err != nil {
			return fmt.Errorf("transform key %q: %w", key, err)
		}
	}
	return nil
}
