// internal/chat/tracker.go
package chat

import "github.com/xkilldash9x/whatsapp-chatter/internal/browser"

// Tracker remembers the text of the last inbound message that was handled so
// the loop replies to each inbound message once. It is owned by a single run.
type Tracker struct {
	lastInbound string
	seen        bool
}

// IsNew reports whether msg is inbound and differs from the recorded text.
// Outgoing messages never count and never reset the marker.
func (t *Tracker) IsNew(msg browser.Message) bool {
	if msg.Direction != browser.DirectionIn {
		return false
	}
	return !t.seen || msg.Text != t.lastInbound
}

// Record marks text as handled.
func (t *Tracker) Record(text string) {
	t.lastInbound = text
	t.seen = true
}

// Last returns the recorded text and whether anything was recorded yet.
func (t *Tracker) Last() (string, bool) {
	return t.lastInbound, t.seen
}
