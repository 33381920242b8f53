// internal/browser/interaction.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

var errWaitTimeout = errors.New("wait timed out")

// OpenTarget navigates to WhatsApp Web and blocks until any ready selector is
// present. The generous load timeout leaves room for scanning the QR code.
func (s *Session) OpenTarget(ctx context.Context) error {
	s.logger.Info("Opening WhatsApp Web and waiting for UI...", zap.String("url", s.cfg.TargetURL))

	loadCtx, cancel := context.WithTimeout(ctx, s.cfg.LoadTimeout)
	defer cancel()

	if err := s.runActions(loadCtx, chromedp.Navigate(s.cfg.TargetURL)); err != nil {
		if loadCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: navigation did not complete within %s", ErrUILoadTimeout, s.cfg.LoadTimeout)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	matched, err := s.waitAny(loadCtx, s.selectors.Ready)
	if err != nil {
		if errors.Is(err, errWaitTimeout) {
			return fmt.Errorf("%w after %s", ErrUILoadTimeout, s.cfg.LoadTimeout)
		}
		return err
	}
	s.logger.Debug("WhatsApp Web UI ready.", zap.String("selector", matched))
	return nil
}

// SelectContact searches for name and opens the chat with the first match.
func (s *Session) SelectContact(ctx context.Context, name string) error {
	s.logger.Info("Selecting contact.", zap.String("contact", name))

	search, err := s.firstPresent(ctx, s.selectors.Search)
	if err != nil {
		if errors.Is(err, ErrSelectorNotFound) {
			return fmt.Errorf("could not find WhatsApp search box, the UI may have changed: %w", err)
		}
		return err
	}

	actionCtx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	if err := s.runActions(actionCtx, chromedp.Focus(search, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to focus search box '%s': %w", search, err)
	}
	s.clearFocused(actionCtx)

	if err := s.runActions(actionCtx,
		chromedp.SendKeys(search, name, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SearchSettle),
		chromedp.KeyEvent(kb.Enter),
	); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to search for contact '%s': %w", name, err)
	}

	chatCtx, chatCancel := context.WithTimeout(ctx, s.cfg.ChatOpenTimeout)
	defer chatCancel()
	if _, err := s.waitAny(chatCtx, []string{s.selectors.ChatOpen}); err != nil {
		if errors.Is(err, errWaitTimeout) {
			return fmt.Errorf("%w for contact '%s' within %s", ErrChatOpenTimeout, name, s.cfg.ChatOpenTimeout)
		}
		return err
	}
	return nil
}

// ReadMessages returns the trimmed, non-empty texts of the message bubbles in
// DOM order. With limit > 0 only the last limit bubbles are read.
func (s *Session) ReadMessages(ctx context.Context, limit int) ([]string, error) {
	raw, err := s.readRaw(ctx)
	if err != nil {
		return nil, err
	}
	return messageTexts(raw, limit), nil
}

// ReadLastMessage reports the final bubble. It returns false when the chat is
// empty or the final bubble has no text.
func (s *Session) ReadLastMessage(ctx context.Context) (Message, bool, error) {
	raw, err := s.readRaw(ctx)
	if err != nil {
		return Message{}, false, err
	}
	msg, ok := lastMessage(raw, s.selectors.InboundClass)
	return msg, ok, nil
}

func (s *Session) readRaw(ctx context.Context) ([]rawMessage, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	var raw []rawMessage
	if err := s.runActions(readCtx, chromedp.Evaluate(messagesScript(s.selectors.Messages), &raw)); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return raw, nil
}

// FindComposer locates the message input box.
func (s *Session) FindComposer(ctx context.Context) (Element, error) {
	sel, err := s.firstPresent(ctx, s.selectors.Composer)
	if err != nil {
		if errors.Is(err, ErrSelectorNotFound) {
			return Element{}, ErrComposerNotFound
		}
		return Element{}, err
	}
	return Element{Selector: sel}, nil
}

// Send types text into the composer and submits it with ENTER.
func (s *Session) Send(ctx context.Context, text string) error {
	s.focusChatPane(ctx)

	composer, err := s.FindComposer(ctx)
	if err != nil {
		return err
	}
	if err := s.compose(ctx, composer, text, true); err != nil {
		return err
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()
	if err := s.runActions(submitCtx, chromedp.KeyEvent(kb.Enter)); err != nil {
		return fmt.Errorf("failed to submit message: %w", err)
	}
	s.logger.Debug("Message sent.", zap.Int("length", len(text)))
	return nil
}

// TypeDraft types text into the composer without submitting it.
func (s *Session) TypeDraft(ctx context.Context, text string) error {
	composer, err := s.FindComposer(ctx)
	if err != nil {
		return err
	}
	return s.compose(ctx, composer, text, false)
}

// compose clicks the composer and enters text. Line breaks are typed as
// Shift+Enter because a bare Enter submits the message.
func (s *Session) compose(ctx context.Context, composer Element, text string, clear bool) error {
	actionCtx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	if err := s.runActions(actionCtx, chromedp.Click(composer.Selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to click composer '%s': %w", composer.Selector, err)
	}
	if clear {
		s.clearFocused(actionCtx)
	}

	var tasks chromedp.Tasks
	for i, line := range splitLines(text) {
		if i > 0 {
			tasks = append(tasks, chromedp.KeyEvent(kb.Enter, chromedp.KeyModifiers(input.ModifierShift)))
		}
		if line != "" {
			tasks = append(tasks, input.InsertText(line))
		}
	}
	if err := s.runActions(actionCtx, tasks); err != nil {
		return fmt.Errorf("failed to type into composer: %w", err)
	}
	return nil
}

// focusChatPane clicks the conversation pane so the composer accepts input.
// Failures are expected on some layouts and ignored.
func (s *Session) focusChatPane(ctx context.Context) {
	if s.selectors.ChatPane == "" {
		return
	}
	paneCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	if _, err := s.waitAny(paneCtx, []string{s.selectors.ChatPane}); err != nil {
		s.logger.Debug("Chat pane not found, continuing.", zap.Error(err))
		return
	}
	if err := s.runActions(paneCtx, chromedp.Click(s.selectors.ChatPane, chromedp.ByQuery)); err != nil {
		s.logger.Debug("Chat pane click failed, continuing.", zap.Error(err))
	}
}

// clearFocused empties the focused element. Best effort.
func (s *Session) clearFocused(ctx context.Context) {
	var cleared bool
	if err := s.runActions(ctx, chromedp.Evaluate(clearScript, &cleared)); err != nil {
		s.logger.Debug("Could not clear input, continuing.", zap.Error(err))
	}
}

// firstPresent tries each selector in order, giving each the lookup timeout,
// and returns the first one that matches.
func (s *Session) firstPresent(ctx context.Context, selectors []string) (string, error) {
	for _, sel := range selectors {
		lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
		matched, err := s.waitAny(lookupCtx, []string{sel})
		cancel()
		if err == nil {
			return matched, nil
		}
		if !errors.Is(err, errWaitTimeout) {
			return "", err
		}
		s.logger.Debug("Selector strategy failed.", zap.String("selector", sel))
	}
	return "", ErrSelectorNotFound
}

// waitAny polls until one of selectors matches a node and returns it. When
// ctx's deadline passes first the error is errWaitTimeout; cancellation is
// returned as is.
func (s *Session) waitAny(ctx context.Context, selectors []string) (string, error) {
	if len(selectors) == 0 {
		return "", ErrSelectorNotFound
	}
	script := presenceScript(selectors)

	for {
		var idx int
		err := s.runActions(ctx, chromedp.Evaluate(script, &idx))
		if err == nil && idx > 0 && idx <= len(selectors) {
			return selectors[idx-1], nil
		}
		if errors.Is(err, ErrSessionClosed) {
			return "", err
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return "", errWaitTimeout
			}
			return "", ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}
