package styles

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

// MessageStyles contains pre-built styles for message rendering.
type MessageStyles struct {
	Theme      Theme
	Identities *IdentityColors

	Own       lipgloss.Style
	Timestamp lipgloss.Style
	Body      lipgloss.Style
	Pending   lipgloss.Style
}

// NewMessageStyles builds a reusable style set for messages.
func NewMessageStyles(theme Theme) MessageStyles {
	return MessageStyles{
		Theme:      theme,
		Identities: NewIdentityColors(theme.Palette),
		Own:        lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Message.Own)).Bold(true),
		Timestamp:  lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Base.Muted)),
		Body:       lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Base.Foreground)),
		Pending:    lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Message.Pending)).Italic(true),
	}
}

// RenderHeader renders the author line. Own messages use the own color;
// others use the author's identity color.
func (s MessageStyles) RenderHeader(author string, ts time.Time, own, pending bool) string {
	name := strings.TrimSpace(author)
	if name == "" {
		name = "unknown"
	}

	var nameText string
	if own {
		nameText = s.Own.Render(name)
	} else {
		nameText = s.Identities.Foreground(name).Render(name)
	}
	header := nameText + " " + s.Timestamp.Render(formatTimestamp(ts))
	if pending {
		header += " " + s.Pending.Render("sending…")
	}
	return header
}

// RenderBody renders wrapped body text.
func (s MessageStyles) RenderBody(body string, width int, pending bool) string {
	style := s.Body
	if pending {
		style = s.Pending
	}
	return style.Render(WrapText(body, width))
}

// WrapText word-wraps each line of body to width.
func WrapText(body string, width int) string {
	if width <= 0 {
		return body
	}
	parts := strings.Split(body, "\n")
	for i := range parts {
		parts[i] = wordwrap.String(parts[i], width)
	}
	return strings.Join(parts, "\n")
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	local := ts.Local()
	if y, m, d := local.Date(); y == time.Now().Year() && m == time.Now().Month() && d == time.Now().Day() {
		return local.Format("15:04")
	}
	return local.Format("Jan 2 15:04")
}
