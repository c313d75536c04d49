// Package config loads and persists a4a's configuration.
// The file lives at <state dir>/config.yaml (default ~/.a4a/config.yaml);
// a missing file yields defaults so a fresh install works with zero setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all a4a configuration.
type Config struct {
	// Gateway connection
	Gateway GatewayConfig `yaml:"gateway"`

	// Chat defaults
	Chat ChatConfig `yaml:"chat"`

	// Poll cadences for the status resources
	Poll PollConfig `yaml:"poll"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// GatewayConfig configures the AI4All gateway endpoint.
type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`        // host root; API routes add /v1
	RequestTimeout string `yaml:"request_timeout"` // non-streaming calls only
}

// ChatConfig holds per-turn request defaults.
type ChatConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"` // 0 = let the gateway decide
}

// PollConfig holds one cadence per status resource. Durations are strings
// ("8s", "2000ms") parsed on demand with per-field fallbacks.
type PollConfig struct {
	Balance      string `yaml:"balance"`
	Node         string `yaml:"node"`
	GPU          string `yaml:"gpu"`
	System       string `yaml:"system"`        // idle cadence
	SystemDetail string `yaml:"system_detail"` // cadence while the detail panel is open
}

// LoggingConfig mirrors the logging package's file-level switches.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: "10s",
		},
		Chat: ChatConfig{
			Model:       "ai4all/llama3",
			Temperature: 0.7,
		},
		Poll: PollConfig{
			Balance:      "30s",
			Node:         "10s",
			GPU:          "15s",
			System:       "8s",
			SystemDetail: "2s",
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// DefaultStateDir returns ~/.a4a, falling back to a relative .a4a
// if the home directory cannot be resolved.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".a4a"
	}
	return filepath.Join(home, ".a4a")
}

// DefaultConfigPath returns the default config.yaml location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultStateDir(), "config.yaml")
}

// Load loads configuration from a YAML file.
// A missing file returns defaults; environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("A4A_GATEWAY_URL"); url != "" {
		c.Gateway.BaseURL = url
	}
	if model := os.Getenv("A4A_MODEL"); model != "" {
		c.Chat.Model = model
	}
	if timeout := os.Getenv("A4A_REQUEST_TIMEOUT"); timeout != "" {
		c.Gateway.RequestTimeout = timeout
	}
}

// RequestTimeout returns the non-streaming request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return parseDuration(c.Gateway.RequestTimeout, 10*time.Second)
}

// BalanceEvery returns the balance poll cadence.
func (p PollConfig) BalanceEvery() time.Duration {
	return parseDuration(p.Balance, 30*time.Second)
}

// NodeEvery returns the node status poll cadence.
func (p PollConfig) NodeEvery() time.Duration {
	return parseDuration(p.Node, 10*time.Second)
}

// GPUEvery returns the GPU status poll cadence.
func (p PollConfig) GPUEvery() time.Duration {
	return parseDuration(p.GPU, 15*time.Second)
}

// SystemEvery returns the idle system stats cadence.
func (p PollConfig) SystemEvery() time.Duration {
	return parseDuration(p.System, 8*time.Second)
}

// SystemDetailEvery returns the system stats cadence while the detail
// panel is open.
func (p PollConfig) SystemDetailEvery() time.Duration {
	return parseDuration(p.SystemDetail, 2*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
