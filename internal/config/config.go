// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Selectors SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
	Model     ModelConfig     `mapstructure:"model" yaml:"model"`
	Contexts  ContextsConfig  `mapstructure:"contexts" yaml:"contexts"`
	Loop      LoopConfig      `mapstructure:"loop" yaml:"loop"`
	// Run gets its marching orders from CLI flags, not the config file.
	Run RunConfig `mapstructure:"-" yaml:"-"`
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

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instance driving WhatsApp Web.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	UserDataDir  string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	ExecPath     string   `mapstructure:"exec_path" yaml:"exec_path"`
	TargetURL    string   `mapstructure:"target_url" yaml:"target_url"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
	Args         []string `mapstructure:"args" yaml:"args"`
	Debug        bool     `mapstructure:"debug" yaml:"debug"`

	LoadTimeout     time.Duration `mapstructure:"load_timeout" yaml:"load_timeout"`
	LookupTimeout   time.Duration `mapstructure:"lookup_timeout" yaml:"lookup_timeout"`
	ChatOpenTimeout time.Duration `mapstructure:"chat_open_timeout" yaml:"chat_open_timeout"`
	SearchSettle    time.Duration `mapstructure:"search_settle" yaml:"search_settle"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// SelectorsConfig lists the CSS selectors used against the WhatsApp Web DOM.
// Lists are tried in declaration order and the first match wins, so UI drift
// can be patched from config.yaml.
type SelectorsConfig struct {
	Ready        []string `mapstructure:"ready" yaml:"ready"`
	Search       []string `mapstructure:"search" yaml:"search"`
	Composer     []string `mapstructure:"composer" yaml:"composer"`
	ChatOpen     string   `mapstructure:"chat_open" yaml:"chat_open"`
	ChatPane     string   `mapstructure:"chat_pane" yaml:"chat_pane"`
	Messages     string   `mapstructure:"messages" yaml:"messages"`
	InboundClass string   `mapstructure:"inbound_class" yaml:"inbound_class"`
}

// LLMProvider defines the supported generation backends.
type LLMProvider string

const (
	ProviderOllama     LLMProvider = "ollama"
	ProviderOllamaHTTP LLMProvider = "ollama-http"
	ProviderGemini     LLMProvider = "gemini"
)

// ModelConfig configures the generation backend.
type ModelConfig struct {
	Provider LLMProvider `mapstructure:"provider" yaml:"provider"`
	Name     string      `mapstructure:"name" yaml:"name"`
	Binary   string      `mapstructure:"binary" yaml:"binary"`
	Endpoint string      `mapstructure:"endpoint" yaml:"endpoint"`
	// GeminiBaseURL overrides the Gemini API host. Endpoint is Ollama-only.
	GeminiBaseURL string        `mapstructure:"gemini_base_url" yaml:"gemini_base_url"`
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ContextsConfig locates the per-contact persona files.
type ContextsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LoopConfig tunes the continuous polling mode.
type LoopConfig struct {
	Interval            time.Duration `mapstructure:"interval" yaml:"interval"`
	MinBackoff          time.Duration `mapstructure:"min_backoff" yaml:"min_backoff"`
	MaxRepliesPerMinute int           `mapstructure:"max_replies_per_minute" yaml:"max_replies_per_minute"`
}

// RunConfig holds settings populated from CLI flags for a single run.
type RunConfig struct {
	Contact      string
	OperatorName string
	ContextFile  string
	DryRun       bool
	// DryRunExplicit records that the operator set --dry-run on the command line.
	DryRunExplicit bool
	Once           bool
	Preview        bool
	Initiate       bool
	Focus          string
}

// DefaultModelName is the Ollama model used when neither config nor environment name one.
const DefaultModelName = "wizardlm2"

// DefaultGeminiModel is the Gemini model used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// DefaultOllamaEndpoint is the address a local Ollama server listens on.
const DefaultOllamaEndpoint = "http://localhost:11434"

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
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
	v.SetDefault("logger.service_name", "whatsapp-chatter")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.target_url", "https://web.whatsapp.com/")
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.load_timeout", "180s")
	v.SetDefault("browser.lookup_timeout", "10s")
	v.SetDefault("browser.chat_open_timeout", "30s")
	v.SetDefault("browser.search_settle", "1200ms")
	v.SetDefault("browser.action_timeout", "30s")

	// -- Selectors --
	v.SetDefault("selectors.ready", []string{
		"[title='Search input textbox']",
		"div[role='textbox'][contenteditable='true']",
	})
	v.SetDefault("selectors.search", []string{
		"[title='Search input textbox']",
		"div[contenteditable='true'][data-tab='3']",
		"div[contenteditable='true'][data-tab='4']",
		"div[contenteditable='true'][role='textbox']",
		"header [contenteditable='true']",
	})
	v.SetDefault("selectors.composer", []string{
		"footer div[contenteditable='true'][role='textbox']",
		"div[role='textbox'][contenteditable='true']",
		"div.selectable-text.copyable-text[contenteditable='true']",
		"div[contenteditable='true'][data-tab='10']",
	})
	v.SetDefault("selectors.chat_open", "div[role='textbox'][contenteditable='true']")
	v.SetDefault("selectors.chat_pane", "div[data-viewport-element='chat']")
	v.SetDefault("selectors.messages", "div.message-in, div.message-out")
	v.SetDefault("selectors.inbound_class", "message-in")

	// -- Model --
	v.SetDefault("model.provider", string(ProviderOllama))
	// No default name: the fallback depends on the provider, see ModelSource.
	v.SetDefault("model.name", "")
	v.SetDefault("model.ollama_model", "")
	v.SetDefault("model.gemini_base_url", "")
	v.SetDefault("model.binary", "ollama")
	v.SetDefault("model.endpoint", DefaultOllamaEndpoint)
	v.SetDefault("model.timeout", "5m")

	// -- Contexts --
	v.SetDefault("contexts.dir", "contexts")

	// -- Loop --
	v.SetDefault("loop.interval", "6s")
	v.SetDefault("loop.min_backoff", "2s")
	v.SetDefault("loop.max_replies_per_minute", 6)
}

// BindEnv wires the environment variables that do not follow the CHATTER_ prefix scheme.
func BindEnv(v *viper.Viper) {
	_ = v.BindEnv("model.name", "CHATTER_MODEL_NAME")
	// Ollama's own variables only ever apply to the Ollama providers.
	_ = v.BindEnv("model.ollama_model", "OLLAMA_MODEL")
	_ = v.BindEnv("model.endpoint", "CHATTER_MODEL_ENDPOINT", "OLLAMA_HOST")
	_ = v.BindEnv("model.api_key", "CHATTER_MODEL_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("model.gemini_base_url", "CHATTER_MODEL_GEMINI_BASE_URL")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	BindEnv(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ModelSource returns a resolver that reads the model name from v at call time.
// An explicit model.name wins. Otherwise Gemini gets DefaultGeminiModel and the
// Ollama providers get OLLAMA_MODEL, then DefaultModelName.
func ModelSource(v *viper.Viper) func() string {
	BindEnv(v)
	return func() string {
		if name := strings.TrimSpace(v.GetString("model.name")); name != "" {
			return name
		}
		return DefaultModelFor(LLMProvider(v.GetString("model.provider")), v.GetString("model.ollama_model"))
	}
}

// DefaultModelFor returns the fallback model for provider. ollamaModel is the
// value of OLLAMA_MODEL and is ignored for Gemini.
func DefaultModelFor(provider LLMProvider, ollamaModel string) string {
	if provider == ProviderGemini {
		return DefaultGeminiModel
	}
	if name := strings.TrimSpace(ollamaModel); name != "" {
		return name
	}
	return DefaultModelName
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Selectors.Validate(); err != nil {
		return fmt.Errorf("selectors configuration invalid: %w", err)
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model configuration invalid: %w", err)
	}
	if strings.TrimSpace(c.Contexts.Dir) == "" {
		return fmt.Errorf("contexts.dir must not be empty")
	}
	if c.Loop.Interval <= 0 {
		return fmt.Errorf("loop.interval must be a positive duration")
	}
	if c.Loop.MinBackoff < 0 {
		return fmt.Errorf("loop.min_backoff must not be negative")
	}
	if c.Loop.MaxRepliesPerMinute < 0 {
		return fmt.Errorf("loop.max_replies_per_minute must not be negative")
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	if b.TargetURL == "" {
		return fmt.Errorf("target_url is required")
	}
	if b.WindowWidth <= 0 || b.WindowHeight <= 0 {
		return fmt.Errorf("window_width and window_height must be positive integers")
	}
	if b.LoadTimeout <= 0 || b.LookupTimeout <= 0 || b.ChatOpenTimeout <= 0 {
		return fmt.Errorf("load_timeout, lookup_timeout and chat_open_timeout must be positive durations")
	}
	return nil
}

// Validate checks that every selector list has at least one strategy.
func (s *SelectorsConfig) Validate() error {
	if len(s.Ready) == 0 {
		return fmt.Errorf("ready must list at least one selector")
	}
	if len(s.Search) == 0 {
		return fmt.Errorf("search must list at least one selector")
	}
	if len(s.Composer) == 0 {
		return fmt.Errorf("composer must list at least one selector")
	}
	if s.ChatOpen == "" || s.Messages == "" || s.InboundClass == "" {
		return fmt.Errorf("chat_open, messages and inbound_class are required")
	}
	return nil
}

// Validate checks the generation backend settings.
func (m *ModelConfig) Validate() error {
	switch m.Provider {
	case ProviderOllama:
		if m.Binary == "" {
			return fmt.Errorf("binary is required for provider %q", m.Provider)
		}
	case ProviderOllamaHTTP:
		if m.Endpoint == "" {
			return fmt.Errorf("endpoint is required for provider %q", m.Provider)
		}
	case ProviderGemini:
		// The API key is checked lazily so --print-config works without one.
	default:
		return fmt.Errorf("unknown provider %q (supported: %s, %s, %s)", m.Provider, ProviderOllama, ProviderOllamaHTTP, ProviderGemini)
	}
	if m.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	return nil
}
