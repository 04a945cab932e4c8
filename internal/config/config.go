// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Automation AutomationConfig `mapstructure:"automation" yaml:"automation"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	// FailFast shuts the process down after an unexpected fault instead of degrading in place.
	FailFast bool `mapstructure:"fail_fast" yaml:"fail_fast"`
	// MaxConcurrentSessions bounds live browser sessions. 0 means unbounded.
	MaxConcurrentSessions int64           `mapstructure:"max_concurrent_sessions" yaml:"max_concurrent_sessions"`
	RateLimit             RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	CORSAllowedOrigins    []string        `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"`
}

// RateLimitConfig throttles the session-creating routes. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" yaml:"rps"`
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

// BrowserConfig holds settings for remote browser sessions.
type BrowserConfig struct {
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	DebugDOM          bool          `mapstructure:"debug_dom" yaml:"debug_dom"`
}

// AutomationConfig bounds what the act/extract adapter sends to the model.
type AutomationConfig struct {
	MaxElements  int     `mapstructure:"max_elements" yaml:"max_elements"`
	MaxPageChars int     `mapstructure:"max_page_chars" yaml:"max_page_chars"`
	Temperature  float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderGemini    LLMProvider = "gemini"
)

// LLMConfig holds per-provider credentials and the default model.
type LLMConfig struct {
	DefaultModel string            `mapstructure:"default_model" yaml:"default_model"`
	OpenAI       LLMProviderConfig `mapstructure:"openai" yaml:"openai"`
	Anthropic    LLMProviderConfig `mapstructure:"anthropic" yaml:"anthropic"`
	Gemini       LLMProviderConfig `mapstructure:"gemini" yaml:"gemini"`
}

// LLMProviderConfig defines the connection settings for one provider.
type LLMProviderConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"-"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
}

// Provider returns the settings for p.
func (l LLMConfig) Provider(p LLMProvider) (LLMProviderConfig, bool) {
	switch p {
	case ProviderOpenAI:
		return l.OpenAI, true
	case ProviderAnthropic:
		return l.Anthropic, true
	case ProviderGemini:
		return l.Gemini, true
	}
	return LLMProviderConfig{}, false
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Path      string `mapstructure:"path" yaml:"path"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-dispatch")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Server --
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.fail_fast", false)
	v.SetDefault("server.max_concurrent_sessions", 0)
	v.SetDefault("server.rate_limit.rps", 0)
	v.SetDefault("server.rate_limit.burst", 10)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})

	// -- Browser --
	v.SetDefault("browser.connect_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.post_load_wait", "500ms")
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.debug_dom", false)

	// -- Automation --
	v.SetDefault("automation.max_elements", 150)
	v.SetDefault("automation.max_page_chars", 20000)
	v.SetDefault("automation.temperature", 0.0)
	v.SetDefault("automation.max_tokens", 2048)

	// -- LLM --
	v.SetDefault("llm.default_model", "gpt-4o")
	v.SetDefault("llm.openai.api_timeout", "120s")
	v.SetDefault("llm.anthropic.endpoint", "https://api.anthropic.com/v1/messages")
	v.SetDefault("llm.anthropic.api_timeout", "120s")
	v.SetDefault("llm.gemini.api_timeout", "120s")

	// -- Metrics --
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "dispatch")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Provider credentials are conventionally supplied through the vendors' own env vars.
	_ = v.BindEnv("llm.openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.gemini.api_key", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LLM.Gemini.APIKey == "" {
		cfg.LLM.Gemini.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is a required configuration field")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be a positive integer")
	}
	if c.Server.MaxConcurrentSessions < 0 {
		return fmt.Errorf("server.max_concurrent_sessions must not be negative")
	}
	if c.Server.RateLimit.RPS > 0 && c.Server.RateLimit.Burst <= 0 {
		return fmt.Errorf("server.rate_limit.burst must be positive when rate limiting is enabled")
	}
	if c.Browser.ConnectTimeout <= 0 {
		return fmt.Errorf("browser.connect_timeout must be a positive duration")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.Automation.MaxElements <= 0 {
		return fmt.Errorf("automation.max_elements must be a positive integer")
	}
	if c.Automation.MaxPageChars <= 0 {
		return fmt.Errorf("automation.max_page_chars must be a positive integer")
	}
	if c.LLM.DefaultModel == "" {
		return fmt.Errorf("llm.default_model is a required configuration field")
	}
	if !schemas.IsSupportedModel(c.LLM.DefaultModel) {
		return fmt.Errorf("llm.default_model %q is not a supported model", c.LLM.DefaultModel)
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics.path is required when metrics are enabled")
	}
	return nil
}
