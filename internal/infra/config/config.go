package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`             // e.g. ":8484"
	APIKey         string `yaml:"api_key"`          // fallback document credential when the client sends none
	RequestsPerMin int    `yaml:"requests_per_min"` // per-IP rate limit, 0 = default
	BurstSize      int    `yaml:"burst_size"`
}

// GristConfig holds document API settings.
type GristConfig struct {
	BaseURL string        `yaml:"base_url"` // e.g. "https://docs.getgrist.com"
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig holds provider settings.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "openai", "anthropic", "bedrock"
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"` // openai-compatible endpoints only
	APIKey      string  `yaml:"api_key"`
	Region      string  `yaml:"region"` // bedrock only
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// AgentConfig holds agent loop settings.
type AgentConfig struct {
	MaxIterations int `yaml:"max_iterations"` // default 15
	QueryRowLimit int `yaml:"query_row_limit"`
}

// ConfirmationConfig holds confirmation registry settings.
type ConfirmationConfig struct {
	TTL           time.Duration `yaml:"ttl"`            // default 300s
	SweepSchedule string        `yaml:"sweep_schedule"` // cron spec, empty = no background sweep
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// Config is the top-level application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Grist        GristConfig        `yaml:"grist"`
	LLM          LLMConfig          `yaml:"llm"`
	Agent        AgentConfig        `yaml:"agent"`
	Confirmation ConfirmationConfig `yaml:"confirmation"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
}

// Default returns a config with sensible defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8484",
			RequestsPerMin: 100,
			BurstSize:      20,
		},
		Grist: GristConfig{
			BaseURL: "https://docs.getgrist.com",
			Timeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			MaxTokens:   4096,
			Temperature: 0,
		},
		Agent: AgentConfig{
			MaxIterations: 15,
			QueryRowLimit: 100,
		},
		Confirmation: ConfirmationConfig{
			TTL:           300 * time.Second,
			SweepSchedule: "@every 1m",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the config file at path, applies defaults for unset fields and
// environment overrides for secrets. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides secrets from the environment. Secrets belong in the
// environment, not in the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GRIST_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("GRIST_BASE_URL"); v != "" {
		cfg.Grist.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Grist.BaseURL == "" {
		return fmt.Errorf("grist.base_url must not be empty")
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "bedrock":
	default:
		return fmt.Errorf("llm.provider %q not supported (want openai, anthropic, or bedrock)", c.LLM.Provider)
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be >= 1")
	}
	if c.Confirmation.TTL < 0 {
		return fmt.Errorf("confirmation.ttl must not be negative")
	}
	return nil
}
