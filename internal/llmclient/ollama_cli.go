// internal/llmclient/ollama_cli.go
package llmclient

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/whatsapp-chatter/internal/config"
	"github.com/xkilldash9x/whatsapp-chatter/internal/prompt"
)

// OllamaCLIClient runs `<binary> run <model>` with the combined prompt on stdin
// and returns the trimmed stdout.
type OllamaCLIClient struct {
	binary  string
	models  ModelSource
	timeout time.Duration
	logger  *zap.Logger
}

// NewOllamaCLIClient creates a subprocess-backed client.
func NewOllamaCLIClient(cfg config.ModelConfig, models ModelSource, logger *zap.Logger) *OllamaCLIClient {
	binary := cfg.Binary
	if binary == "" {
		binary = "ollama"
	}
	return &OllamaCLIClient{
		binary:  binary,
		models:  models,
		timeout: cfg.Timeout,
		logger:  logger.Named("llm_client.ollama"),
	}
}

// Generate implements Client. A missing executable yields ErrBackendUnavailable;
// a non-zero exit yields a *GenerationError carrying the backend's stderr.
func (c *OllamaCLIClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	model := resolveModel(req, c.models, config.DefaultModelName)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.binary, "run", model)
	cmd.Stdin = strings.NewReader(prompt.Combine(req.SystemPrompt, req.UserPrompt))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("Invoking generation backend.", zap.String("binary", c.binary), zap.String("model", model))
	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", unavailable("ollama", err)
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			err = errors.Join(err, ctx.Err())
		}
		c.logger.Warn("Generation backend failed.",
			zap.String("model", model), zap.Int("exit_code", code), zap.Duration("duration", duration))
		return "", &GenerationError{
			Backend:    "ollama",
			Model:      model,
			Code:       code,
			Diagnostic: strings.ToValidUTF8(stderr.String(), ""),
			Err:        err,
		}
	}

	reply := strings.TrimSpace(strings.ToValidUTF8(stdout.String(), ""))
	c.logger.Info("LLM generation complete (ollama).",
		zap.String("model", model), zap.Duration("duration", duration), zap.Int("reply_length", len(reply)))
	return reply, nil
}
