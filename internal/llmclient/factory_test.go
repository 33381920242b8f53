package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/whatsapp-chatter/internal/config"
)

func TestNewClient(t *testing.T) {
	logger := zaptest.NewLogger(t)
	base := config.ModelConfig{Name: "llama3", Binary: "ollama", Endpoint: "http://gpu-box:11434", Timeout: time.Minute}

	tests := []struct {
		provider config.LLMProvider
		check    func(t *testing.T, c Client)
	}{
		{config.ProviderOllama, func(t *testing.T, c Client) { assert.IsType(t, &OllamaCLIClient{}, c) }},
		{"", func(t *testing.T, c Client) { assert.IsType(t, &OllamaCLIClient{}, c) }},
		{config.ProviderOllamaHTTP, func(t *testing.T, c Client) { assert.IsType(t, &OllamaHTTPClient{}, c) }},
		{config.ProviderGemini, func(t *testing.T, c Client) {
			g, ok := c.(*GeminiClient)
			require.True(t, ok)
			assert.Empty(t, g.baseURL, "the Ollama endpoint must not leak into Gemini")
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			cfg := base
			cfg.Provider = tt.provider
			c, err := NewClient(cfg, nil, logger)
			require.NoError(t, err)
			tt.check(t, c)
		})
	}

	t.Run("unknown provider", func(t *testing.T) {
		cfg := base
		cfg.Provider = "openai"
		_, err := NewClient(cfg, nil, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai")
	})

	t.Run("configured name used when no source", func(t *testing.T) {
		c, err := NewClient(base, nil, nil)
		require.NoError(t, err)
		cli := c.(*OllamaCLIClient)
		assert.Equal(t, "llama3", cli.models())
	})
}

func TestGeminiClient_MissingKey(t *testing.T) {
	client := NewGeminiClient(config.ModelConfig{Provider: config.ProviderGemini, Timeout: time.Minute}, nil, zaptest.NewLogger(t))
	_, err := client.Generate(context.Background(), GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")

	// The failure is sticky; no client is constructed on retry.
	_, err = client.Generate(context.Background(), GenerationRequest{UserPrompt: "hi"})
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
}

// Mirrors cmd wiring: viper defaults, environment, NewConfigFromViper, ModelSource.
func TestNewClient_GeminiWiring(t *testing.T) {
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("gemini request reached the Ollama host: %s", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ollama.Close()

	var gotPath, gotKey string
	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"  see you friday  "}]}}]}`)
	}))
	defer gemini.Close()

	t.Setenv("OLLAMA_HOST", ollama.URL)
	t.Setenv("OLLAMA_MODEL", "wizardlm2")
	t.Setenv("GEMINI_API_KEY", "test-key")

	newViper := func(t *testing.T) *viper.Viper {
		v := viper.New()
		config.SetDefaults(v)
		v.Set("model.provider", string(config.ProviderGemini))
		return v
	}

	t.Run("DefaultModelAndOwnBaseURL", func(t *testing.T) {
		t.Setenv("CHATTER_MODEL_GEMINI_BASE_URL", gemini.URL)
		v := newViper(t)
		cfg, err := config.NewConfigFromViper(v)
		require.NoError(t, err)

		source := config.ModelSource(v)
		assert.Equal(t, config.DefaultGeminiModel, source(), "Ollama's default and OLLAMA_MODEL never pick the Gemini model")

		client, err := NewClient(cfg.Model, source, zaptest.NewLogger(t))
		require.NoError(t, err)
		reply, err := client.Generate(context.Background(), GenerationRequest{SystemPrompt: "be brief", UserPrompt: "friday?"})
		require.NoError(t, err)

		assert.Equal(t, "see you friday", reply)
		assert.Equal(t, "/v1beta/models/"+config.DefaultGeminiModel+":generateContent", gotPath)
		assert.Equal(t, "test-key", gotKey)
	})

	t.Run("OllamaHostIgnored", func(t *testing.T) {
		v := newViper(t)
		cfg, err := config.NewConfigFromViper(v)
		require.NoError(t, err)
		require.Equal(t, ollama.URL, cfg.Model.Endpoint)

		client, err := NewClient(cfg.Model, config.ModelSource(v), zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Empty(t, client.(*GeminiClient).baseURL)
	})

	t.Run("ExplicitNameWins", func(t *testing.T) {
		v := newViper(t)
		v.Set("model.name", "gemini-2.5-pro")
		assert.Equal(t, "gemini-2.5-pro", config.ModelSource(v)())
	})
}
