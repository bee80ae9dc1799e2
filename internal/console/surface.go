package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
)

// Severity decides how a notice is presented.
type Severity string

const (
	SeverityInfo        Severity = "info"
	SeverityWarning     Severity = "warning"     // inline validation
	SeverityBlocking    Severity = "blocking"    // stays until dismissed, e.g. disconnected
	SeverityDismissible Severity = "dismissible" // fetch errors, conflicts
)

// Notice is one message shown to the admin.
type Notice struct {
	Severity Severity
	Title    string
	Body     string
}

// NoticeFor maps a console error to the notice shown for it.
func NoticeFor(err error) Notice {
	msg := apperr.Message(err)
	switch apperr.Code(err) {
	case apperr.CodeValidation:
		return Notice{Severity: SeverityWarning, Title: "Check your input", Body: msg}
	case apperr.CodeDisconnected:
		return Notice{Severity: SeverityBlocking, Title: "Disconnected", Body: msg}
	case apperr.CodeConflict:
		return Notice{Severity: SeverityDismissible, Title: "Already claimed", Body: "Another admin claimed this chat first."}
	case apperr.CodeAuthInvalid:
		return Notice{Severity: SeverityBlocking, Title: "Not signed in", Body: msg}
	default:
		return Notice{Severity: SeverityDismissible, Title: "Something went wrong", Body: msg}
	}
}

// Surface presents notices. Only one notice is shown at a time.
type Surface interface {
	Show(n Notice)
	Dismiss()
}

// Layout describes the terminal the console runs in.
type Layout struct {
	Compact bool
	Width   int
}

// NewSurface picks a bottom sheet for compact layouts and a centred dialog
// otherwise.
func NewSurface(w io.Writer, layout Layout) Surface {
	if layout.Width <= 0 {
		layout.Width = 80
	}
	if layout.Compact {
		return &SheetSurface{base: base{w: w, width: layout.Width}}
	}
	return &DialogSurface{base: base{w: w, width: layout.Width}}
}

var severityColors = map[Severity]lipgloss.Color{
	SeverityInfo:        lipgloss.Color("#8BC34A"),
	SeverityWarning:     lipgloss.Color("#F5A623"),
	SeverityBlocking:    lipgloss.Color("#E5484D"),
	SeverityDismissible: lipgloss.Color("#6E7681"),
}

type base struct {
	w       io.Writer
	width   int
	mu      sync.Mutex
	current *Notice
}

func (b *base) show(n Notice, render func(Notice) string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = &n
	fmt.Fprintln(b.w, render(n))
}

// Dismiss clears the current notice.
func (b *base) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = nil
}

// Current returns the notice on screen, if any.
func (b *base) Current() *Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil
	}
	n := *b.current
	return &n
}

func noticeText(n Notice) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(severityColors[n.Severity]).Render(n.Title)
	text := title
	if n.Body != "" {
		text += "\n" + n.Body
	}
	if n.Severity == SeverityDismissible {
		text += "\n" + lipgloss.NewStyle().Faint(true).Render("press enter to dismiss")
	}
	return text
}

// DialogSurface renders notices as a bordered box centred in the terminal.
type DialogSurface struct {
	base
}

// Show renders n as a dialog.
func (d *DialogSurface) Show(n Notice) {
	d.show(n, func(n Notice) string {
		boxWidth := d.width - 4
		if boxWidth > 60 {
			boxWidth = 60
		}
		box := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(severityColors[n.Severity]).
			Padding(0, 1).
			Width(boxWidth).
			Render(noticeText(n))
		return lipgloss.PlaceHorizontal(d.width, lipgloss.Center, box)
	})
}

// SheetSurface renders notices as a full-width sheet with a top rule.
type SheetSurface struct {
	base
}

// Show renders n as a bottom sheet.
func (s *SheetSurface) Show(n Notice) {
	s.show(n, func(n Notice) string {
		return lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(severityColors[n.Severity]).
			Width(s.width).
			Render(noticeText(n))
	})
}
