// cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/whatsapp-chatter/internal/browser"
	"github.com/xkilldash9x/whatsapp-chatter/internal/chat"
	"github.com/xkilldash9x/whatsapp-chatter/internal/config"
	"github.com/xkilldash9x/whatsapp-chatter/internal/llmclient"
	"github.com/xkilldash9x/whatsapp-chatter/internal/printer"
)

// fakeSession is a scripted chat with a fixed transcript.
type fakeSession struct {
	transcript []string
	sent       []string
	closed     bool
	headless   bool
}

func (f *fakeSession) OpenTarget(context.Context) error            { return nil }
func (f *fakeSession) SelectContact(context.Context, string) error { return nil }
func (f *fakeSession) ReadMessages(context.Context, int) ([]string, error) {
	return f.transcript, nil
}
func (f *fakeSession) ReadLastMessage(context.Context) (browser.Message, bool, error) {
	return browser.Message{}, false, nil
}
func (f *fakeSession) Send(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	return nil
}
func (f *fakeSession) TypeDraft(context.Context, string) error { return nil }
func (f *fakeSession) ID() string                              { return "fake" }
func (f *fakeSession) Headless() bool                          { return f.headless }
func (f *fakeSession) Close(context.Context) error {
	f.closed = true
	return nil
}

type echoClient struct {
	models llmclient.ModelSource
	model  string
}

func (e *echoClient) Generate(ctx context.Context, req llmclient.GenerationRequest) (string, error) {
	e.model = e.models()
	return "sounds good", nil
}

// harness swaps the browser and model constructors and captures what they receive.
type harness struct {
	cfg     *config.Config
	session *fakeSession
	client  *echoClient
	mcfg    config.ModelConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{session: &fakeSession{transcript: []string{"hey", "are we still on for friday?"}}}

	origLaunch, origClient := launchSession, newModelClient
	t.Cleanup(func() { launchSession, newModelClient = origLaunch, origClient })

	launchSession = func(_ context.Context, cfg *config.Config, _ *zap.Logger) (chat.Session, error) {
		h.cfg = cfg
		h.session.headless = cfg.Browser.Headless
		return h.session, nil
	}
	newModelClient = func(cfg config.ModelConfig, models llmclient.ModelSource, _ *zap.Logger) (llmclient.Client, error) {
		h.mcfg = cfg
		h.client = &echoClient{models: models}
		return h.client, nil
	}

	// Keep context files out of the package directory.
	t.Setenv("CHATTER_CONTEXTS_DIR", t.TempDir())
	t.Setenv("CHATTER_LOGGER_LEVEL", "fatal")
	return h
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "version "+Version)
}

func TestRootCmd_ContactRequired(t *testing.T) {
	newHarness(t)
	_, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contact name is required")

	_, err = execute(t, "Charlie", "Dana")
	assert.Error(t, err, "only one contact per run")
}

func TestRootCmd_SingleShotWiring(t *testing.T) {
	h := newHarness(t)

	out, err := execute(t, "Charlie",
		"--once", "--dry-run=false",
		"--me", "Sam",
		"--context", "charlie-work.txt",
		"--prompt", "  confirm friday  ",
		"--model", "llama3",
		"--interval", "0.5",
		"--headless",
	)
	require.NoError(t, err)

	require.NotNil(t, h.cfg)
	assert.Equal(t, config.RunConfig{
		Contact:        "Charlie",
		OperatorName:   "Sam",
		ContextFile:    "charlie-work.txt",
		DryRun:         false,
		DryRunExplicit: true,
		Once:           true,
		Focus:          "confirm friday",
	}, h.cfg.Run)
	assert.Equal(t, 500*time.Millisecond, h.cfg.Loop.Interval)
	assert.True(t, h.cfg.Browser.Headless)
	assert.Equal(t, config.ProviderOllama, h.mcfg.Provider)

	assert.Equal(t, "llama3", h.client.model, "the --model flag feeds the call-time model source")
	assert.Equal(t, printer.DryRunBanner+"\nsounds good\n", out)
	assert.Empty(t, h.session.sent, "single-shot never sends")
	assert.True(t, h.session.closed, "headless sessions are closed on exit")

	_, err = os.Stat(filepath.Join(os.Getenv("CHATTER_CONTEXTS_DIR"), "charlie-work.txt"))
	assert.NoError(t, err, "the context file is created on first use")
}

func TestRootCmd_ModelFromEnvironment(t *testing.T) {
	h := newHarness(t)
	t.Setenv("OLLAMA_MODEL", "mistral")

	_, err := execute(t, "Charlie", "--once")
	require.NoError(t, err)
	assert.Equal(t, "mistral", h.client.model)
	assert.False(t, h.session.closed, "a visible browser is left open")
}

func TestRootCmd_InitiateSends(t *testing.T) {
	h := newHarness(t)

	out, err := execute(t, "Charlie", "--initiate", "--once")
	require.NoError(t, err)
	assert.Equal(t, []string{"sounds good"}, h.session.sent)
	assert.Contains(t, out, printer.OpenerSent)
}

func TestRootCmd_InvalidInput(t *testing.T) {
	h := newHarness(t)

	_, err := execute(t, "Charlie", "--interval", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--interval")

	_, err = execute(t, "Charlie", "--provider", "openai")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")

	assert.Nil(t, h.cfg, "nothing is launched when the configuration is invalid")
}

func TestRootCmd_ConfigFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "chatter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
loop:
  interval: 9s
  max_replies_per_minute: 2
model:
  provider: ollama-http
  endpoint: localhost:11500
`), 0o644))

	_, err := execute(t, "Charlie", "--once", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, h.cfg.Loop.Interval)
	assert.Equal(t, 2, h.cfg.Loop.MaxRepliesPerMinute)
	assert.Equal(t, config.ProviderOllamaHTTP, h.mcfg.Provider)
	assert.Equal(t, "localhost:11500", h.mcfg.Endpoint)
}

func TestRootCmd_PrintConfig(t *testing.T) {
	h := newHarness(t)

	out, err := execute(t, "--print-config", "--provider", "gemini", "--interval", "3")
	require.NoError(t, err)
	assert.Nil(t, h.cfg, "--print-config never launches a browser")

	var dumped map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &dumped))
	model := dumped["model"].(map[string]any)
	assert.Equal(t, "gemini", model["provider"])
	assert.NotContains(t, model, "api_key")
	loop := dumped["loop"].(map[string]any)
	assert.Equal(t, "3s", loop["interval"])
	assert.NotContains(t, dumped, "run")
}

func TestRootCmd_GeminiIgnoresOllamaModel(t *testing.T) {
	h := newHarness(t)
	t.Setenv("OLLAMA_MODEL", "mistral")
	t.Setenv("GEMINI_API_KEY", "test-key")

	_, err := execute(t, "Charlie", "--once", "--provider", "gemini")
	require.NoError(t, err)
	assert.Equal(t, config.ProviderGemini, h.mcfg.Provider)
	assert.Equal(t, config.DefaultGeminiModel, h.client.model)
}
