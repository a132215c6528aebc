// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	LLM() LLMConfig
	Agent() AgentConfig

	// Agent setters used by CLI flags.
	SetAgentMaxSteps(int)
	SetAgentViewportExpansion(int)
	SetAgentScriptExecutionTool(bool)

	// Browser setters used by CLI flags.
	SetBrowserHeadless(bool)
}

// Config holds the entire application configuration. It uses private fields
// to enforce access through the Interface's getter methods.
type Config struct {
	logger  LoggerConfig
	browser BrowserConfig
	llm     LLMConfig
	agent   AgentConfig
}

// configSchema mirrors Config with exported fields. mapstructure cannot set
// unexported fields by reflection, so viper decoding goes through this shape
// and the result is copied into the private-field Config.
type configSchema struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
}

// decodeViper unmarshals the viper state into a Config.
func decodeViper(v *viper.Viper) (*Config, error) {
	var s configSchema
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	return &Config{
		logger:  s.Logger,
		browser: s.Browser,
		llm:     s.LLM,
		agent:   s.Agent,
	}, nil
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.logger }
func (c *Config) Browser() BrowserConfig { return c.browser }
func (c *Config) LLM() LLMConfig         { return c.llm }
func (c *Config) Agent() AgentConfig     { return c.agent }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetAgentMaxSteps(n int)              { c.agent.MaxSteps = n }
func (c *Config) SetAgentViewportExpansion(n int)     { c.agent.ViewportExpansion = n }
func (c *Config) SetAgentScriptExecutionTool(b bool)  { c.agent.ScriptExecutionTool = b }
func (c *Config) SetBrowserHeadless(b bool)           { c.browser.Headless = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// ActionTimeout bounds a single element interaction (click, fill, scroll).
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig defines the configuration for the language model backing the agent.
type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// AgentConfig holds settings related to the perception-and-action loop.
type AgentConfig struct {
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// ViewportExpansion controls which elements are indexed: -1 covers the
	// whole page, 0 only the viewport, positive values pad the viewport by
	// that many pixels.
	ViewportExpansion int      `mapstructure:"viewport_expansion" yaml:"viewport_expansion"`
	IncludeAttributes []string `mapstructure:"include_attributes" yaml:"include_attributes"`
	WorkingLanguage   string   `mapstructure:"working_language" yaml:"working_language"`
	// ScriptExecutionTool exposes the execute_javascript tool. Off by default:
	// arbitrary script evaluation defeats the index-only addressing guardrail.
	ScriptExecutionTool bool `mapstructure:"script_execution_tool" yaml:"script_execution_tool"`
	// WaitWarnAfter is the cumulative wait time after which the loop appends a
	// system note discouraging further waiting.
	WaitWarnAfter time.Duration `mapstructure:"wait_warn_after" yaml:"wait_warn_after"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	cfg, err := decodeViper(v)
	if err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pagepilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.action_timeout", "5s")

	// -- LLM --
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_timeout", "120s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)

	// -- Agent --
	v.SetDefault("agent.max_steps", 50)
	v.SetDefault("agent.viewport_expansion", -1)
	v.SetDefault("agent.working_language", "English")
	v.SetDefault("agent.script_execution_tool", false)
	v.SetDefault("agent.wait_warn_after", "3s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for the LLM credentials. The OPENAI_* and
	// bare fallbacks are the variables the test harness exports.
	v.BindEnv("llm.api_key", "PAGEPILOT_LLM_API_KEY", "OPENAI_API_KEY", "API_KEY")
	v.BindEnv("llm.endpoint", "PAGEPILOT_LLM_ENDPOINT", "OPENAI_BASE_URL", "BASE_URL")
	v.BindEnv("llm.model", "PAGEPILOT_LLM_MODEL", "OPENAI_MODEL", "MODEL")

	cfg, err := decodeViper(v)
	if err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.agent.ViewportExpansion < -1 {
		return fmt.Errorf("agent.viewport_expansion must be -1 (whole page) or >= 0")
	}
	if c.browser.ActionTimeout <= 0 {
		return fmt.Errorf("browser.action_timeout must be a positive duration")
	}
	switch c.llm.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("llm.provider must be one of [%s %s], got %q", ProviderOpenAI, ProviderGemini, c.llm.Provider)
	}
	return nil
}
