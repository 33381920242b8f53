// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/whatsapp-chatter/internal/config"
)

var (
	// ErrUILoadTimeout means none of the ready selectors appeared within the load timeout,
	// typically because the QR code was never scanned.
	ErrUILoadTimeout = errors.New("whatsapp web did not finish loading")

	// ErrSelectorNotFound means every strategy in a selector list failed.
	ErrSelectorNotFound = errors.New("no selector strategy matched")

	// ErrComposerNotFound is returned when the message composer cannot be located.
	// It also matches ErrSelectorNotFound.
	ErrComposerNotFound = fmt.Errorf("message composer not found: %w", ErrSelectorNotFound)

	// ErrChatOpenTimeout means the chat view did not open after selecting a contact.
	ErrChatOpenTimeout = errors.New("chat did not open")

	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("browser session is closed")
)

// Session is a single Chrome tab driving WhatsApp Web.
type Session struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	allocStop context.CancelFunc
	logger    *zap.Logger
	cfg       config.BrowserConfig
	selectors config.SelectorsConfig

	// pollInterval paces the presence checks of waitAny.
	pollInterval time.Duration

	mu       sync.Mutex
	isClosed bool
}

// Launch starts Chrome with the configured profile and attaches a tab.
// The browser lives until Close, independent of ctx, which only bounds startup.
func Launch(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, err := AllocatorOptions(cfg.Browser)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()
	sessionLogger := logger.Named("browser").With(zap.String("session_id", sessionID))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(sessionLogger.Sugar().Debugf),
		chromedp.WithErrorf(sessionLogger.Sugar().Debugf),
	}
	if cfg.Browser.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(sessionLogger.Sugar().Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	s := &Session{
		id:           sessionID,
		ctx:          browserCtx,
		cancel:       browserCancel,
		allocStop:    allocCancel,
		logger:       sessionLogger,
		cfg:          cfg.Browser,
		selectors:    cfg.Selectors,
		pollInterval: 250 * time.Millisecond,
	}

	// The first Run allocates the browser. It must run on the browser context
	// itself; a derived deadline would tear the browser down when it expires.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			s.shutdown()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-ctx.Done():
		s.shutdown()
		return nil, ctx.Err()
	}

	s.logger.Info("Browser session started.",
		zap.Bool("headless", cfg.Browser.Headless),
		zap.String("user_data_dir", cfg.Browser.UserDataDir))
	return s, nil
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Headless reports whether the browser was started without a window.
func (s *Session) Headless() bool {
	return s.cfg.Headless
}

// Close terminates the browser. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()

	var err error
	select {
	case err = <-done:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	case <-ctx.Done():
		s.logger.Warn("Browser shutdown timed out, proceeding forcefully.")
	}

	s.shutdown()
	return err
}

func (s *Session) shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocStop != nil {
		s.allocStop()
	}
}

func (s *Session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed
}

// runActions executes chromedp actions bounded by both the session lifetime
// and the incoming operation context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed() {
		return ErrSessionClosed
	}
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}
