// Package printer renders generated messages for the operator on stdout.
package printer

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

const (
	OpenerBanner  = "--- Generated opener ---"
	DryRunBanner  = "--- Generated reply (dry-run) ---"
	PreviewBanner = "--- Typed reply (preview) ---"
	OpenerSent    = "Opener sent."
	ReplySent     = "Reply sent."
	LoopStarted   = "Continuous mode: Ctrl+C to stop. Polling for new incoming messages..."
	LoopStopped   = "Exiting continuous mode."
)

var (
	accent  = lipgloss.Color("#8BC34A")
	info    = lipgloss.Color("#2196F3")
	warning = lipgloss.Color("#FFC107")
)

// Printer writes banners and message bodies. Styling is dropped automatically
// when w is not a terminal, so piped output stays plain text.
type Printer struct {
	w       io.Writer
	banner  lipgloss.Style
	preview lipgloss.Style
	status  lipgloss.Style
	body    lipgloss.Style
}

// New creates a Printer bound to w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		banner:  r.NewStyle().Bold(true).Foreground(info),
		preview: r.NewStyle().Bold(true).Foreground(warning),
		status:  r.NewStyle().Foreground(accent),
		body:    r.NewStyle(),
	}
}

// Opener prints a generated conversation opener.
func (p *Printer) Opener(text string) { p.block(p.banner, OpenerBanner, text) }

// DryRun prints a reply that was generated but is not being typed.
func (p *Printer) DryRun(text string) { p.block(p.banner, DryRunBanner, text) }

// Preview prints a reply that was typed into the composer without sending.
func (p *Printer) Preview(text string) { p.block(p.preview, PreviewBanner, text) }

func (p *Printer) OpenerSent() { p.line(p.status, OpenerSent) }

func (p *Printer) ReplySent() { p.line(p.status, ReplySent) }

func (p *Printer) LoopStarted() { p.line(p.body, LoopStarted) }

func (p *Printer) LoopStopped() { p.line(p.body, LoopStopped) }

func (p *Printer) block(style lipgloss.Style, banner, text string) {
	p.line(style, banner)
	// The body is printed verbatim; the operator may copy it.
	fmt.Fprintln(p.w, text)
}

func (p *Printer) line(style lipgloss.Style, s string) {
	fmt.Fprintln(p.w, style.Render(s))
}
