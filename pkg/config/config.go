package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the bot
type Config struct {
	// Instagram client settings
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Pacing defaults applied to new jobs
	Pacing PacingConfig `yaml:"pacing" json:"pacing"`

	// Dashboard server settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InstagramConfig holds feed-provider client configuration
type InstagramConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
}

// PacingConfig holds the default human-like pacing for engagement jobs.
// LikeDelay is derived from TargetLikes over Window when not set explicitly.
type PacingConfig struct {
	TargetLikes      int           `yaml:"target_likes" json:"target_likes"`
	Window           time.Duration `yaml:"window" json:"window"`
	LikeDelay        time.Duration `yaml:"like_delay" json:"like_delay"`
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval"`
	RateLimitPause   time.Duration `yaml:"rate_limit_pause" json:"rate_limit_pause"`
	MaxProbeAttempts int           `yaml:"max_probe_attempts" json:"max_probe_attempts"`
}

// ServerConfig holds dashboard server configuration
type ServerConfig struct {
	Addr             string        `yaml:"addr" json:"addr"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	EventMinInterval time.Duration `yaml:"event_min_interval" json:"event_min_interval"`
	StateFile        string        `yaml:"state_file" json:"state_file"`
	HashtagFile      string        `yaml:"hashtag_file" json:"hashtag_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults.
// Pacing defaults come from the original automation profile: 700 likes
// spread over 12 hours, a one minute feed poll, and a four hour pause
// after a rate-limit signal.
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			BaseURL:           "https://i.instagram.com",
			RequestTimeout:    15 * time.Second,
			RequestsPerMinute: 60,
			MaxRetries:        3,
		},
		Pacing: PacingConfig{
			TargetLikes:      700,
			Window:           12 * time.Hour,
			PollInterval:     time.Minute,
			RateLimitPause:   4 * time.Hour,
			MaxProbeAttempts: 6,
		},
		Server: ServerConfig{
			Addr:             ":8080",
			ShutdownTimeout:  10 * time.Second,
			EventMinInterval: 0,
			StateFile:        "data/bot-state.json",
			HashtagFile:      "data/hashtags.json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if addr := os.Getenv("BOTINSTA_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if stateFile := os.Getenv("BOTINSTA_STATE_FILE"); stateFile != "" {
		c.Server.StateFile = stateFile
	}
	if rpm := os.Getenv("BOTINSTA_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.Instagram.RequestsPerMinute = val
		}
	}
	if target := os.Getenv("BOTINSTA_TARGET_LIKES"); target != "" {
		if val, err := strconv.Atoi(target); err == nil && val > 0 {
			c.Pacing.TargetLikes = val
		}
	}
	if window := os.Getenv("BOTINSTA_LIKE_WINDOW"); window != "" {
		if val, err := time.ParseDuration(window); err == nil && val > 0 {
			c.Pacing.Window = val
		}
	}
	if poll := os.Getenv("BOTINSTA_POLL_INTERVAL"); poll != "" {
		if val, err := time.ParseDuration(poll); err == nil && val > 0 {
			c.Pacing.PollInterval = val
		}
	}
	if pause := os.Getenv("BOTINSTA_RATE_LIMIT_PAUSE"); pause != "" {
		if val, err := time.ParseDuration(pause); err == nil && val > 0 {
			c.Pacing.RateLimitPause = val
		}
	}
	if logLevel := os.Getenv("BOTINSTA_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".botinsta.yaml",
		".botinsta.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "botinsta", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "botinsta", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".botinsta.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Instagram.BaseURL == "" {
		errs = append(errs, errors.New("instagram base URL is required"))
	}
	if c.Instagram.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.Instagram.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.Instagram.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Pacing.LikeDelay == 0 {
		if c.Pacing.TargetLikes <= 0 {
			errs = append(errs, errors.New("target likes must be positive"))
		}
		if c.Pacing.Window <= 0 {
			errs = append(errs, errors.New("like window must be positive"))
		}
	}
	if c.Pacing.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Pacing.RateLimitPause <= 0 {
		errs = append(errs, errors.New("rate limit pause must be positive"))
	}
	if c.Pacing.MaxProbeAttempts <= 0 {
		errs = append(errs, errors.New("max probe attempts must be positive"))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.Server.StateFile == "" {
		errs = append(errs, errors.New("state file path is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if addr, ok := flags["addr"].(string); ok && addr != "" {
		c.Server.Addr = addr
	}
	if stateFile, ok := flags["state-file"].(string); ok && stateFile != "" {
		c.Server.StateFile = stateFile
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if poll, ok := flags["poll-interval"].(time.Duration); ok && poll > 0 {
		c.Pacing.PollInterval = poll
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".botinsta.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
