// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/whatsapp-chatter/internal/config"
)

// NewClient is a factory function that creates a Client based on the configuration.
// A nil models source falls back to the configured model name.
func NewClient(cfg config.ModelConfig, models ModelSource, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if models == nil {
		models = StaticModel(cfg.Name)
	}

	switch cfg.Provider {
	case config.ProviderOllama, "":
		return NewOllamaCLIClient(cfg, models, logger), nil
	case config.ProviderOllamaHTTP:
		return NewOllamaHTTPClient(cfg, models, logger), nil
	case config.ProviderGemini:
		return NewGeminiClient(cfg, models, logger), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderOllama, config.ProviderOllamaHTTP, config.ProviderGemini)
	}
}
