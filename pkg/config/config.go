package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SHOTPROBE_"

// Config holds all configuration options for the prober
type Config struct {
	Probe      ProbeConfig      `yaml:"probe" json:"probe"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Retry      RetryConfig      `yaml:"retry" json:"retry"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	Model      ModelConfig      `yaml:"model" json:"model"`
	Inference  InferenceConfig  `yaml:"inference" json:"inference"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ProbeConfig controls code generation and the resolve/fetch calls
type ProbeConfig struct {
	Checks            int           `yaml:"checks" json:"checks"`
	CodeLength        int           `yaml:"code_length" json:"code_length"`
	Workers           int           `yaml:"workers" json:"workers"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	PlaceholderMarker string        `yaml:"placeholder_marker" json:"placeholder_marker"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	ResolveTimeout    time.Duration `yaml:"resolve_timeout" json:"resolve_timeout"`
	DownloadTimeout   time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// RateLimitConfig holds request pacing configuration
type RateLimitConfig struct {
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int    `yaml:"burst_size" json:"burst_size"`
	Strategy          string `yaml:"strategy" json:"strategy"`
}

// Rate limiting strategies
const (
	StrategyTokenBucket   = "token_bucket"
	StrategySlidingWindow = "sliding_window"
)

// RetryConfig applies to model downloads and inference calls
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier" json:"multiplier"`
}

// OutputConfig holds output locations
type OutputConfig struct {
	DownloadDir    string `yaml:"download_dir" json:"download_dir"`
	SaveMetadata   bool   `yaml:"save_metadata" json:"save_metadata"`
	MetadataFormat string `yaml:"metadata_format" json:"metadata_format"`
	ReportFile     string `yaml:"report_file" json:"report_file"`
}

// ModelConfig describes where the vision model artifacts live and where to get them
type ModelConfig struct {
	Dir             string        `yaml:"dir" json:"dir"`
	PreferredFile   string        `yaml:"preferred_file" json:"preferred_file"`
	DefaultFile     string        `yaml:"default_file" json:"default_file"`
	DownloadURL     string        `yaml:"download_url" json:"download_url"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// InferenceConfig points at the local vision model server
type InferenceConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	Endpoint      string        `yaml:"endpoint" json:"endpoint"`
	Question      string        `yaml:"question" json:"question"`
	CaptionLength string        `yaml:"caption_length" json:"caption_length"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	Slots         int           `yaml:"slots" json:"slots"`
}

// CheckpointConfig controls run-state persistence for --resume
type CheckpointConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Name     string `yaml:"name" json:"name"`
	Interval int    `yaml:"interval" json:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Probe: ProbeConfig{
			Checks:            10000,
			CodeLength:        11,
			Workers:           8,
			BaseURL:           "https://prnt.sc",
			PlaceholderMarker: "st.prntscr.com",
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36",
			ResolveTimeout:    10 * time.Second,
			DownloadTimeout:   30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			BurstSize:         20,
			Strategy:          StrategyTokenBucket,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2.0,
		},
		Output: OutputConfig{
			DownloadDir:    "downloads",
			SaveMetadata:   true,
			MetadataFormat: "json",
		},
		Model: ModelConfig{
			Dir:             "model",
			PreferredFile:   "moondream-2b-int8.mf",
			DefaultFile:     "moondream-0_5b-int8.mf",
			DownloadURL:     "https://huggingface.co/vikhyatk/moondream2/resolve/9dddae84d54db4ac56fe37817aeaeb502ed083e2/moondream-0_5b-int8.mf.gz?download=true",
			DownloadTimeout: 60 * time.Second,
		},
		Inference: InferenceConfig{
			Enabled:       true,
			Endpoint:      "http://localhost:2020/v1",
			Question:      "What's in this image?",
			CaptionLength: "normal",
			Timeout:       2 * time.Minute,
			Slots:         1,
		},
		Checkpoint: CheckpointConfig{
			Enabled:  true,
			Name:     "default",
			Interval: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from SHOTPROBE_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	envInt := func(name string, dst *int) {
		raw := os.Getenv(envPrefix + name)
		if raw == "" {
			return
		}
		var val int
		if _, err := fmt.Sscanf(raw, "%d", &val); err != nil || val <= 0 {
			errs = append(errs, fmt.Errorf("%s%s: invalid value %q", envPrefix, name, raw))
			return
		}
		*dst = val
	}
	envString := func(name string, dst *string) {
		if raw := os.Getenv(envPrefix + name); raw != "" {
			*dst = raw
		}
	}
	envDuration := func(name string, dst *time.Duration) {
		raw := os.Getenv(envPrefix + name)
		if raw == "" {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = d
	}

	envInt("CHECKS", &c.Probe.Checks)
	envInt("CODE_LENGTH", &c.Probe.CodeLength)
	envInt("WORKERS", &c.Probe.Workers)
	envString("BASE_URL", &c.Probe.BaseURL)
	envString("USER_AGENT", &c.Probe.UserAgent)
	envDuration("RESOLVE_TIMEOUT", &c.Probe.ResolveTimeout)
	envDuration("DOWNLOAD_TIMEOUT", &c.Probe.DownloadTimeout)

	envInt("REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	envString("RATE_LIMIT_STRATEGY", &c.RateLimit.Strategy)

	envString("DOWNLOAD_DIR", &c.Output.DownloadDir)
	envString("REPORT_FILE", &c.Output.ReportFile)

	envString("MODEL_DIR", &c.Model.Dir)
	envString("MODEL_URL", &c.Model.DownloadURL)

	envString("INFERENCE_ENDPOINT", &c.Inference.Endpoint)
	envString("QUESTION", &c.Inference.Question)
	envInt("INFERENCE_SLOTS", &c.Inference.Slots)
	if enabled := os.Getenv(envPrefix + "ANALYZE"); enabled != "" {
		c.Inference.Enabled = strings.ToLower(enabled) == "true"
	}

	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
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

// SearchPaths lists the config file locations checked when no path is given
func SearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		".shotprobe.yaml",
		".shotprobe.yml",
		filepath.Join(xdg.ConfigHome, "shotprobe", "config.yaml"),
		filepath.Join(xdg.ConfigHome, "shotprobe", "config.yml"),
		filepath.Join(home, ".shotprobe.yaml"),
	}
}

func (c *Config) findConfigFile() string {
	for _, loc := range SearchPaths() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Probe.Checks <= 0 {
		errs = append(errs, errors.New("checks must be positive"))
	}
	if c.Probe.CodeLength <= 0 {
		errs = append(errs, errors.New("code length must be positive"))
	}
	if c.Probe.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Probe.Workers > 64 {
		errs = append(errs, errors.New("workers should not exceed 64"))
	}
	if u, err := url.Parse(c.Probe.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid base url %q", c.Probe.BaseURL))
	}
	if c.Probe.ResolveTimeout <= 0 {
		errs = append(errs, errors.New("resolve timeout must be positive"))
	}
	if c.Probe.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	switch c.RateLimit.Strategy {
	case StrategyTokenBucket, StrategySlidingWindow:
	default:
		errs = append(errs, fmt.Errorf("invalid rate limit strategy %q (token_bucket or sliding_window)", c.RateLimit.Strategy))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}

	if c.Output.DownloadDir == "" {
		errs = append(errs, errors.New("download directory is required"))
	}
	switch strings.ToLower(c.Output.MetadataFormat) {
	case "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("invalid metadata format %q", c.Output.MetadataFormat))
	}

	if c.Model.Dir == "" {
		errs = append(errs, errors.New("model directory is required"))
	}
	if c.Model.DefaultFile == "" || c.Model.PreferredFile == "" {
		errs = append(errs, errors.New("model file names are required"))
	}
	if c.Model.DownloadURL == "" {
		errs = append(errs, errors.New("model download url is required"))
	}

	if c.Inference.Enabled {
		if _, err := url.Parse(c.Inference.Endpoint); err != nil || c.Inference.Endpoint == "" {
			errs = append(errs, fmt.Errorf("invalid inference endpoint %q", c.Inference.Endpoint))
		}
		if c.Inference.Slots <= 0 {
			errs = append(errs, errors.New("inference slots must be positive"))
		}
		if strings.TrimSpace(c.Inference.Question) == "" {
			errs = append(errs, errors.New("inference question is required"))
		}
	}

	if c.Checkpoint.Enabled && c.Checkpoint.Interval <= 0 {
		errs = append(errs, errors.New("checkpoint interval must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
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

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Zero values are treated as "not set".
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["checks"].(int); ok && v > 0 {
		c.Probe.Checks = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Probe.Workers = v
	}
	if v, ok := flags["code-length"].(int); ok && v > 0 {
		c.Probe.CodeLength = v
	}
	if v, ok := flags["rate-limit"].(int); ok && v > 0 {
		c.RateLimit.RequestsPerMinute = v
	}
	if v, ok := flags["rate-strategy"].(string); ok && v != "" {
		c.RateLimit.Strategy = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.DownloadDir = v
	}
	if v, ok := flags["report"].(string); ok && v != "" {
		c.Output.ReportFile = v
	}
	if v, ok := flags["model-dir"].(string); ok && v != "" {
		c.Model.Dir = v
	}
	if v, ok := flags["endpoint"].(string); ok && v != "" {
		c.Inference.Endpoint = v
	}
	if v, ok := flags["no-analyze"].(bool); ok && v {
		c.Inference.Enabled = false
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// godotenv never overrides variables that are already set
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(xdg.ConfigHome, "shotprobe", "shotprobe.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
