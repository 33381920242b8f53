// internal/browser/dom.go
package browser

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Direction tells whether a message was received or sent.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Message is one chat bubble as rendered in the DOM.
type Message struct {
	Direction Direction
	Text      string
}

// Element identifies a located DOM node by the selector strategy that found it.
type Element struct {
	Selector string
}

// rawMessage is what messagesScript returns per bubble.
type rawMessage struct {
	Class string `json:"cls"`
	Text  string `json:"text"`
}

// jsonEncode safely encodes a value for JS injection.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}

// presenceScript evaluates to the 1-based index of the first selector in
// selectors that matches a node, or 0 when none do.
func presenceScript(selectors []string) string {
	return fmt.Sprintf(`(function(sels) {
	for (let i = 0; i < sels.length; i++) {
		try {
			if (document.querySelector(sels[i])) return i + 1;
		} catch (e) { /* invalid selector, try the next one */ }
	}
	return 0;
})(%s)`, jsonEncode(selectors))
}

// messagesScript collects class and visible text for every node matching query, in DOM order.
func messagesScript(query string) string {
	return fmt.Sprintf(`(function(q) {
	return Array.from(document.querySelectorAll(q)).map(function(el) {
		return { cls: el.getAttribute('class') || '', text: el.innerText || '' };
	});
})(%s)`, jsonEncode(query))
}

// clearScript empties the focused editable. WhatsApp's editor ignores value
// assignment, so the selection is deleted through execCommand.
const clearScript = `(function() {
	const el = document.activeElement;
	if (!el) return false;
	if ('value' in el) { el.value = ''; return true; }
	document.execCommand('selectAll', false, null);
	return document.execCommand('delete', false, null);
})()`

// messageTexts trims every bubble, drops empty ones and keeps DOM order.
// With limit > 0 only the last limit raw bubbles are considered, before
// empties are dropped, so the result may hold fewer than limit texts.
func messageTexts(raw []rawMessage, limit int) []string {
	if limit > 0 && len(raw) > limit {
		raw = raw[len(raw)-limit:]
	}
	texts := make([]string, 0, len(raw))
	for _, m := range raw {
		if t := strings.TrimSpace(m.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts
}

// lastMessage returns the final bubble. An empty final bubble reports false;
// earlier bubbles are never consulted.
func lastMessage(raw []rawMessage, inboundClass string) (Message, bool) {
	if len(raw) == 0 {
		return Message{}, false
	}
	last := raw[len(raw)-1]
	text := strings.TrimSpace(last.Text)
	if text == "" {
		return Message{}, false
	}
	return Message{Direction: directionFromClass(last.Class, inboundClass), Text: text}, true
}

// directionFromClass reports DirectionIn when the class list carries inboundClass.
func directionFromClass(classAttr, inboundClass string) Direction {
	for _, c := range strings.Fields(classAttr) {
		if c == inboundClass {
			return DirectionIn
		}
	}
	return DirectionOut
}

// splitLines breaks text on newlines so each break can be typed as Shift+Enter.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
