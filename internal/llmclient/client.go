// internal/llmclient/client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBackendUnavailable means the generation backend could not be reached
	// at all (executable missing, server down, no credentials).
	ErrBackendUnavailable = errors.New("generation backend unavailable")

	// ErrGenerationFailed means the backend ran but reported a failure.
	// Errors of this kind are *GenerationError values.
	ErrGenerationFailed = errors.New("generation failed")
)

// Client generates a reply for a system/user prompt pair.
type Client interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GenerationRequest carries the prompts for a single generation.
// An empty Model is resolved through the client's ModelSource.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
}

// ModelSource resolves the default model name at call time.
type ModelSource func() string

// StaticModel returns a ModelSource that always yields name.
func StaticModel(name string) ModelSource {
	return func() string { return name }
}

// GenerationError is returned when the backend ran and failed. Code is the
// process exit code or the HTTP status, depending on the backend.
type GenerationError struct {
	Backend    string
	Model      string
	Code       int
	Diagnostic string
	Err        error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s failed for model %q (code %d)", e.Backend, e.Model, e.Code)
	if d := strings.TrimSpace(e.Diagnostic); d != "" {
		msg += ": " + d
	}
	return msg
}

// Is makes errors.Is(err, ErrGenerationFailed) hold for every GenerationError.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGenerationFailed
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// unavailable wraps cause so that errors.Is(err, ErrBackendUnavailable) holds.
func unavailable(backend string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", backend, ErrBackendUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", backend, ErrBackendUnavailable, cause)
}

// resolveModel picks the request model, then the source, then fallback.
func resolveModel(req GenerationRequest, source ModelSource, fallback string) string {
	if m := strings.TrimSpace(req.Model); m != "" {
		return m
	}
	if source != nil {
		if m := strings.TrimSpace(source()); m != "" {
			return m
		}
	}
	return fallback
}
