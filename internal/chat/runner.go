// internal/chat/runner.go
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/whatsapp-chatter/internal/browser"
	"github.com/xkilldash9x/whatsapp-chatter/internal/config"
	"github.com/xkilldash9x/whatsapp-chatter/internal/contexts"
	"github.com/xkilldash9x/whatsapp-chatter/internal/llmclient"
	"github.com/xkilldash9x/whatsapp-chatter/internal/printer"
	"github.com/xkilldash9x/whatsapp-chatter/internal/prompt"
)

// ErrEmptyReply is returned when the backend produced only whitespace.
var ErrEmptyReply = errors.New("model returned an empty reply")

const teardownTimeout = 15 * time.Second

// Session is the slice of browser.Session the runner drives.
type Session interface {
	OpenTarget(ctx context.Context) error
	SelectContact(ctx context.Context, name string) error
	ReadMessages(ctx context.Context, limit int) ([]string, error)
	ReadLastMessage(ctx context.Context) (browser.Message, bool, error)
	Send(ctx context.Context, text string) error
	TypeDraft(ctx context.Context, text string) error
	ID() string
	Headless() bool
	Close(ctx context.Context) error
}

var _ Session = (*browser.Session)(nil)

// Runner executes one run for one contact: setup, then initiate, single-shot
// or continuous mode, then teardown.
type Runner struct {
	run     config.RunConfig
	loop    config.LoopConfig
	logger  *zap.Logger
	session Session
	client  llmclient.Client
	store   *contexts.Store
	printer *printer.Printer
	limiter *rate.Limiter
}

// New creates a Runner. The session is owned by the runner from here on and
// is torn down when Run returns.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	session Session,
	client llmclient.Client,
	store *contexts.Store,
	out *printer.Printer,
) (*Runner, error) {
	if cfg == nil || logger == nil || session == nil || client == nil || store == nil || out == nil {
		return nil, fmt.Errorf("cannot initialize runner with nil dependencies")
	}
	if strings.TrimSpace(cfg.Run.Contact) == "" {
		return nil, fmt.Errorf("contact name is required")
	}

	r := &Runner{
		run:     cfg.Run,
		loop:    cfg.Loop,
		logger:  logger.Named("chat").With(zap.String("contact", cfg.Run.Contact)),
		session: session,
		client:  client,
		store:   store,
		printer: out,
	}
	if n := cfg.Loop.MaxRepliesPerMinute; n > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
	return r, nil
}

// Run performs the whole run. Setup and single-shot failures are returned;
// continuous mode only returns when ctx is canceled, and then returns nil.
func (r *Runner) Run(ctx context.Context) error {
	defer r.teardown()

	system, err := r.setup(ctx)
	if err != nil {
		return err
	}

	if r.run.Initiate {
		if err := r.initiate(ctx, system); err != nil {
			return err
		}
		if r.run.Once {
			return nil
		}
	}

	if r.run.Once {
		return r.singleShot(ctx, system)
	}
	return r.continuous(ctx, system)
}

// setup prepares the context file, opens WhatsApp Web and the chat, and
// builds the system prompt that stays fixed for the run.
func (r *Runner) setup(ctx context.Context) (string, error) {
	path, err := r.store.EnsureExists(r.run.Contact, r.run.ContextFile)
	if err != nil {
		return "", fmt.Errorf("failed to prepare context file: %w", err)
	}
	contextText := r.store.Load(r.run.Contact, r.run.ContextFile)

	r.logger.Info("Opening WhatsApp Web...", zap.String("session_id", r.session.ID()))
	if err := r.session.OpenTarget(ctx); err != nil {
		return "", fmt.Errorf("failed to open WhatsApp Web: %w", err)
	}
	if err := r.session.SelectContact(ctx, r.run.Contact); err != nil {
		return "", fmt.Errorf("failed to select contact '%s': %w", r.run.Contact, err)
	}

	r.logger.Info("Building system prompt.",
		zap.String("me", r.run.OperatorName),
		zap.String("context_file", path),
		zap.Bool("has_context", strings.TrimSpace(contextText) != ""))
	return prompt.BuildSystemPrompt(r.run.Contact, contextText, r.run.OperatorName), nil
}

func (r *Runner) initiate(ctx context.Context, system string) error {
	r.logger.Info("Initiator mode: composing opening message...")

	transcript, err := r.session.ReadMessages(browser.Detach(ctx), 0)
	if err != nil {
		return err
	}
	reply, err := r.generate(ctx, system, prompt.WithDirective(transcript, prompt.InitiateDirective(r.run.Focus)))
	if err != nil {
		return err
	}
	r.printer.Opener(reply)

	switch {
	case r.run.Preview:
		r.logger.Info("Preview mode: typing opener without sending.")
		return r.session.TypeDraft(browser.Detach(ctx), reply)
	case !r.run.DryRun:
		r.logger.Info("Sending opener...")
		if err := r.send(ctx, reply); err != nil {
			return err
		}
		r.printer.OpenerSent()
	default:
		r.logger.Info("Dry-run: opener not sent.")
	}
	return nil
}

// singleShot generates one reply and never sends it.
func (r *Runner) singleShot(ctx context.Context, system string) error {
	if r.run.DryRunExplicit && !r.run.DryRun && !r.run.Preview {
		r.logger.Warn("Single-shot mode never sends; the reply is only printed. Use continuous mode to send.")
	}
	r.logger.Info("Reading full conversation (single-shot mode)...")

	transcript, err := r.session.ReadMessages(browser.Detach(ctx), 0)
	if err != nil {
		return err
	}
	reply, err := r.generate(ctx, system, prompt.WithDirective(transcript, r.focusDirective()))
	if err != nil {
		return err
	}

	if r.run.Preview {
		r.logger.Info("Preview mode: typing reply without sending.")
		if err := r.session.TypeDraft(browser.Detach(ctx), reply); err != nil {
			return err
		}
		r.printer.Preview(reply)
		return nil
	}
	r.logger.Info("Dry-run: showing generated reply only (not sending).")
	r.printer.DryRun(reply)
	return nil
}

// continuous polls the last message until ctx is canceled. Errors inside an
// iteration are logged and followed by the backoff wait.
func (r *Runner) continuous(ctx context.Context, system string) error {
	r.printer.LoopStarted()
	tracker := &Tracker{}
	defer func() {
		r.printer.LoopStopped()
		last, ok := tracker.Last()
		r.logger.Info("Polling stopped.", zap.Bool("handled_any", ok), zap.String("last_handled", last))
	}()

	backoff := r.loop.Interval
	if r.loop.MinBackoff > backoff {
		backoff = r.loop.MinBackoff
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		wait := r.loop.Interval
		if err := r.iterate(ctx, system, tracker); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("Error in polling loop.", zap.Error(err), zap.Duration("backoff", backoff))
			wait = backoff
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// iterate handles one poll. DOM work runs detached from ctx so an interrupt
// never leaves a half-typed message; generation and pacing honor ctx.
func (r *Runner) iterate(ctx context.Context, system string, tracker *Tracker) error {
	domCtx := browser.Detach(ctx)

	last, ok, err := r.session.ReadLastMessage(domCtx)
	if err != nil {
		return err
	}
	if !ok || !tracker.IsNew(last) {
		return nil
	}

	r.logger.Info("New incoming message detected. Building prompt from full conversation...")
	transcript, err := r.session.ReadMessages(domCtx, 0)
	if err != nil {
		return err
	}
	reply, err := r.generate(ctx, system, prompt.WithDirective(transcript, r.focusDirective()))
	if err != nil {
		return err
	}

	if r.run.Preview {
		r.logger.Info("Preview mode: typing reply without sending.")
		if err := r.session.TypeDraft(domCtx, reply); err != nil {
			return err
		}
		r.printer.Preview(reply)
	} else {
		r.printer.DryRun(reply)
		if !r.run.DryRun {
			r.logger.Info("Sending reply...")
			if err := r.send(ctx, reply); err != nil {
				return err
			}
			r.printer.ReplySent()
		}
	}

	// A failed iteration leaves the marker alone so the message is retried.
	tracker.Record(last.Text)
	return nil
}

func (r *Runner) generate(ctx context.Context, system string, messages []string) (string, error) {
	r.logger.Info("Calling model to generate reply...", zap.Int("transcript_lines", len(messages)))
	reply, err := r.client.Generate(ctx, llmclient.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   prompt.BuildUserPrompt(messages),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// send waits for the rate limiter, then sends under a detached context.
func (r *Runner) send(ctx context.Context, text string) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send pacing interrupted: %w", err)
		}
	}
	if err := r.session.Send(browser.Detach(ctx), text); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (r *Runner) focusDirective() string {
	if r.run.Focus == "" {
		return ""
	}
	return prompt.FocusDirective(r.run.Focus)
}

// teardown closes headless browsers. A visible browser is left open so the
// operator can keep using the logged-in window.
func (r *Runner) teardown() {
	if !r.session.Headless() {
		r.logger.Info("Leaving browser window open.")
		return
	}
	r.logger.Info("Closing headless browser.")
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := r.session.Close(ctx); err != nil {
		r.logger.Warn("Failed to close browser cleanly.", zap.Error(err))
	}
}
