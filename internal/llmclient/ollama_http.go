// internal/llmclient/ollama_http.go
package llmclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/whatsapp-chatter/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OllamaHTTPClient talks to a running Ollama server through /api/generate.
type OllamaHTTPClient struct {
	endpoint   string
	models     ModelSource
	httpClient *http.Client
	logger     *zap.Logger
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// NewOllamaHTTPClient initializes the client.
func NewOllamaHTTPClient(cfg config.ModelConfig, models ModelSource, logger *zap.Logger) *OllamaHTTPClient {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = config.DefaultOllamaEndpoint
	}
	// OLLAMA_HOST is commonly set as a bare host:port.
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return &OllamaHTTPClient{
		endpoint:   endpoint,
		models:     models,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("llm_client.ollama_http"),
	}
}

// Generate implements Client.
func (c *OllamaHTTPClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	model := resolveModel(req, c.models, config.DefaultModelName)

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  model,
		System: req.SystemPrompt,
		Prompt: req.UserPrompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return "", unavailable("ollama-http", err)
		}
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var payload ollamaGenerateResponse
	decodeErr := json.Unmarshal(respBody, &payload)

	if resp.StatusCode != http.StatusOK {
		diagnostic := string(respBody)
		if decodeErr == nil && payload.Error != "" {
			diagnostic = payload.Error
		}
		return "", &GenerationError{Backend: "ollama-http", Model: model, Code: resp.StatusCode, Diagnostic: diagnostic}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode response payload: %w", decodeErr)
	}

	c.logger.Info("LLM generation complete (ollama-http).",
		zap.String("model", model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", payload.PromptEvalCount),
		zap.Int("completion_tokens", payload.EvalCount),
	)
	return strings.TrimSpace(payload.Response), nil
}
