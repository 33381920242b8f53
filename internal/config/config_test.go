// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "whatsapp-chatter", cfg.Logger.ServiceName)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "https://web.whatsapp.com/", cfg.Browser.TargetURL)
	assert.Equal(t, 1280, cfg.Browser.WindowWidth)
	assert.Equal(t, 900, cfg.Browser.WindowHeight)
	assert.Equal(t, 180*time.Second, cfg.Browser.LoadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Browser.LookupTimeout)
	assert.Equal(t, 1200*time.Millisecond, cfg.Browser.SearchSettle)
	assert.Equal(t, ProviderOllama, cfg.Model.Provider)
	assert.Empty(t, cfg.Model.Name, "the fallback model depends on the provider")
	assert.Empty(t, cfg.Model.GeminiBaseURL)
	assert.Equal(t, "contexts", cfg.Contexts.Dir)
	assert.Equal(t, 6*time.Second, cfg.Loop.Interval)
	assert.Equal(t, 2*time.Second, cfg.Loop.MinBackoff)

	// Selector lists keep their declaration order.
	require.Len(t, cfg.Selectors.Search, 5)
	assert.Equal(t, "[title='Search input textbox']", cfg.Selectors.Search[0])
	assert.Equal(t, "header [contenteditable='true']", cfg.Selectors.Search[4])
	require.Len(t, cfg.Selectors.Composer, 4)
	assert.Equal(t, "footer div[contenteditable='true'][role='textbox']", cfg.Selectors.Composer[0])
	assert.Equal(t, "div.message-in, div.message-out", cfg.Selectors.Messages)

	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero interval", func(c *Config) { c.Loop.Interval = 0 }, "loop.interval must be a positive duration"},
		{"negative backoff", func(c *Config) { c.Loop.MinBackoff = -time.Second }, "loop.min_backoff must not be negative"},
		{"negative rate", func(c *Config) { c.Loop.MaxRepliesPerMinute = -1 }, "loop.max_replies_per_minute"},
		{"empty contexts dir", func(c *Config) { c.Contexts.Dir = "  " }, "contexts.dir must not be empty"},
		{"no target", func(c *Config) { c.Browser.TargetURL = "" }, "target_url is required"},
		{"bad window", func(c *Config) { c.Browser.WindowWidth = 0 }, "window_width and window_height"},
		{"no search selectors", func(c *Config) { c.Selectors.Search = nil }, "search must list at least one selector"},
		{"no composer selectors", func(c *Config) { c.Selectors.Composer = []string{} }, "composer must list at least one selector"},
		{"unknown provider", func(c *Config) { c.Model.Provider = "llamafile" }, "unknown provider"},
		{"ollama without binary", func(c *Config) { c.Model.Binary = "" }, "binary is required"},
		{"zero model timeout", func(c *Config) { c.Model.Timeout = 0 }, "timeout must be a positive duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("gemini without key is accepted", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Model.Provider = ProviderGemini
		assert.NoError(t, cfg.Validate())
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper_ReadsYAML(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	yamlConfig := []byte(`
browser:
  headless: true
  user_data_dir: ~/.wa-profile
selectors:
  composer:
    - "div.new-composer[contenteditable='true']"
loop:
  interval: 3s
model:
  provider: ollama-http
  endpoint: http://127.0.0.1:11434
`)
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "~/.wa-profile", cfg.Browser.UserDataDir)
	assert.Equal(t, []string{"div.new-composer[contenteditable='true']"}, cfg.Selectors.Composer)
	// Untouched lists keep their defaults.
	assert.Len(t, cfg.Selectors.Search, 5)
	assert.Equal(t, 3*time.Second, cfg.Loop.Interval)
	assert.Equal(t, ProviderOllamaHTTP, cfg.Model.Provider)
	assert.Equal(t, "http://127.0.0.1:11434", cfg.Model.Endpoint)
}

func TestNewConfigFromViper_InvalidConfig(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("loop.interval", "0s")

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestModelSource(t *testing.T) {
	t.Run("environment variable is read at call time", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		source := ModelSource(v)

		assert.Equal(t, DefaultModelName, source())

		t.Setenv("OLLAMA_MODEL", "llama3")
		assert.Equal(t, "llama3", source())
	})

	t.Run("explicit override wins", func(t *testing.T) {
		t.Setenv("OLLAMA_MODEL", "llama3")
		v := viper.New()
		SetDefaults(v)
		v.Set("model.name", "mistral")
		assert.Equal(t, "mistral", ModelSource(v)())
	})

	t.Run("blank falls back to default", func(t *testing.T) {
		v := viper.New()
		v.Set("model.name", "   ")
		assert.Equal(t, DefaultModelName, ModelSource(v)())
	})

	t.Run("gemini ignores ollama settings", func(t *testing.T) {
		t.Setenv("OLLAMA_MODEL", "llama3")
		v := viper.New()
		SetDefaults(v)
		v.Set("model.provider", string(ProviderGemini))
		assert.Equal(t, DefaultGeminiModel, ModelSource(v)())

		t.Setenv("CHATTER_MODEL_NAME", "gemini-2.5-pro")
		assert.Equal(t, "gemini-2.5-pro", ModelSource(v)())
	})
}

func TestDefaultModelFor(t *testing.T) {
	assert.Equal(t, DefaultModelName, DefaultModelFor(ProviderOllama, ""))
	assert.Equal(t, "phi3", DefaultModelFor(ProviderOllamaHTTP, " phi3 "))
	assert.Equal(t, DefaultGeminiModel, DefaultModelFor(ProviderGemini, "phi3"))
}

func TestBindEnv_GeminiBaseURLSeparateFromOllamaHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("CHATTER_MODEL_GEMINI_BASE_URL", "https://gemini-proxy.internal")
	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", cfg.Model.Endpoint)
	assert.Equal(t, "https://gemini-proxy.internal", cfg.Model.GeminiBaseURL)
}
