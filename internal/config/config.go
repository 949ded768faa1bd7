package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Listen   string         `toml:"listen"`
	LogLevel string         `toml:"log_level"`
	LLM      LLMConfig      `toml:"llm"`
	SecondMe SecondMeConfig `toml:"secondme"`
	Gemini   GeminiConfig   `toml:"gemini"`
	NATS     NATSConfig     `toml:"nats"`
}

// LLMConfig configures the default OpenAI-compatible backend.
type LLMConfig struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	MaxTokens      int     `toml:"max_tokens"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RateLimit      float64 `toml:"rate_limit"` // requests per second, 0 disables pacing
}

// SecondMeConfig configures the premium per-party backend.
type SecondMeConfig struct {
	BaseURL        string `toml:"base_url"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// GeminiConfig configures the JSON-constrained summary backend. Empty APIKey disables it.
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// NATSConfig configures event fan-out. Empty URL disables it.
type NATSConfig struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// Timeout returns the per-call ceiling for the default backend.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the per-call ceiling for the premium backend.
func (c SecondMeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Default returns the configuration used when neither file nor environment set a value.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		LogLevel: "INFO",
		LLM: LLMConfig{
			BaseURL:        "https://newapi.deepwisdom.ai/v1",
			Model:          "deepseek-chat",
			MaxTokens:      1200,
			Temperature:    0.7,
			TimeoutSeconds: 30,
			RateLimit:      5,
		},
		SecondMe: SecondMeConfig{
			BaseURL:        "https://app.mindos.com/gate/lab",
			MaxTokens:      800,
			TimeoutSeconds: 15,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash-001",
		},
		NATS: NATSConfig{
			SubjectPrefix: "negotiation",
		},
	}
}

// Load builds the configuration from defaults, the optional TOML file at path,
// and environment variables, in that order of precedence (last wins).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("NEGOTIATOR_LISTEN", &c.Listen)
	envString("NEGOTIATOR_LOG_LEVEL", &c.LogLevel)

	envString("LLM_API_KEY", &c.LLM.APIKey)
	envString("LLM_BASE_URL", &c.LLM.BaseURL)
	envString("LLM_MODEL", &c.LLM.Model)
	if err := envInt("LLM_MAX_TOKENS", &c.LLM.MaxTokens); err != nil {
		return err
	}
	if err := envInt("LLM_TIMEOUT_SECONDS", &c.LLM.TimeoutSeconds); err != nil {
		return err
	}
	if err := envFloat("LLM_RATE_LIMIT", &c.LLM.RateLimit); err != nil {
		return err
	}

	envString("SECONDME_BASE_URL", &c.SecondMe.BaseURL)
	if err := envInt("SECONDME_MAX_TOKENS", &c.SecondMe.MaxTokens); err != nil {
		return err
	}
	if err := envInt("SECONDME_TIMEOUT_SECONDS", &c.SecondMe.TimeoutSeconds); err != nil {
		return err
	}

	envString("GEMINI_API_KEY", &c.Gemini.APIKey)
	envString("GEMINI_MODEL", &c.Gemini.Model)

	envString("NATS_URL", &c.NATS.URL)
	envString("NATS_SUBJECT_PREFIX", &c.NATS.SubjectPrefix)
	return nil
}

// Validate checks the invariants the rest of the program relies on.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config: LLM_API_KEY is required")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("config: LLM base URL is required")
	}
	if c.LLM.TimeoutSeconds < 1 {
		return fmt.Errorf("config: LLM timeout must be >= 1s, got %d", c.LLM.TimeoutSeconds)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("config: LLM max tokens must be >= 1, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.RateLimit < 0 {
		return fmt.Errorf("config: LLM rate limit must be >= 0, got %g", c.LLM.RateLimit)
	}
	if c.SecondMe.TimeoutSeconds < 1 {
		return fmt.Errorf("config: SecondMe timeout must be >= 1s, got %d", c.SecondMe.TimeoutSeconds)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path without overriding variables
// already present in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: loading .env: %w", err)
	}
	return nil
}

func envString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

func envInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("config: invalid %s value %q: %w", key, s, err)
	}
	*dst = v
	return nil
}

func envFloat(key string, dst *float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("config: invalid %s value %q: %w", key, s, err)
	}
	*dst = v
	return nil
}
