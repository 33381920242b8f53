// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/whatsapp-chatter/internal/config"
)

// GeminiClient generates replies through the Gemini API. The SDK client is
// created on first use so a missing key only fails the generation.
type GeminiClient struct {
	apiKey   string
	baseURL  string
	models   ModelSource
	timeout  time.Duration
	logger   *zap.Logger
	initOnce sync.Once
	initErr  error
	client   *genai.Client
}

// NewGeminiClient initializes the client.
func NewGeminiClient(cfg config.ModelConfig, models ModelSource, logger *zap.Logger) *GeminiClient {
	// cfg.Endpoint belongs to Ollama (and OLLAMA_HOST); it never reaches Gemini.
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSpace(cfg.GeminiBaseURL),
		models:  models,
		timeout: cfg.Timeout,
		logger:  logger.Named("llm_client.gemini"),
	}
}

func (c *GeminiClient) init(ctx context.Context) error {
	c.initOnce.Do(func() {
		if c.apiKey == "" {
			c.initErr = unavailable("gemini", fmt.Errorf("no API key configured (GEMINI_API_KEY)"))
			return
		}
		clientCfg := &genai.ClientConfig{APIKey: c.apiKey, Backend: genai.BackendGeminiAPI}
		if c.baseURL != "" {
			clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
		}
		client, err := genai.NewClient(ctx, clientCfg)
		if err != nil {
			c.initErr = unavailable("gemini", err)
			return
		}
		c.client = client
	})
	return c.initErr
}

// Generate implements Client.
func (c *GeminiClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := c.init(ctx); err != nil {
		return "", err
	}
	model := resolveModel(req, c.models, config.DefaultGeminiModel)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.UserPrompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
	})
	if err != nil {
		return "", &GenerationError{Backend: "gemini", Model: model, Code: -1, Diagnostic: err.Error(), Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &GenerationError{Backend: "gemini", Model: model, Code: -1, Diagnostic: "no candidates returned (check safety filters)"}
	}

	reply := strings.TrimSpace(resp.Text())
	fields := []zap.Field{zap.String("model", model), zap.Duration("duration", time.Since(start))}
	if resp.UsageMetadata != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount))
	}
	c.logger.Info("LLM generation complete (Gemini).", fields...)
	return reply, nil
}
