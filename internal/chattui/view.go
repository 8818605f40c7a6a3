package chattui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/chattui/styles"
	"github.com/tOgg1/parley/internal/live"
	"github.com/tOgg1/parley/internal/preview"
	"github.com/tOgg1/parley/internal/session"
)

const (
	// header + footer lines
	chromeHeight   = 2
	composerHeight = 1
)

func (m *Model) View() string {
	if m.width == 0 {
		return "loading…"
	}
	if m.view.Session != session.SignedIn {
		return m.renderLogin()
	}

	header := m.renderHeader()
	footer := m.renderFooter()
	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if bodyHeight < 0 {
		bodyHeight = 0
	}

	widths := styles.ComputeColumnWidths(m.width)
	conversation := m.renderConversation(widths.Conversation, bodyHeight)
	body := conversation
	if widths.Roster > 0 {
		roster := m.renderRoster(widths.Roster, bodyHeight)
		body = lipgloss.JoinHorizontal(lipgloss.Top, roster, strings.Repeat(" ", styles.LayoutGap), conversation)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderHeader() string {
	name := m.view.Principal.Label()
	return m.theme.Header().Render("parley") + "  " +
		m.theme.Muted().Render(name) + "  " +
		m.renderChannel(m.view.Channel)
}

func (m *Model) renderChannel(state live.State) string {
	color := m.theme.Connection.Closed
	label := "offline"
	switch state {
	case live.Open:
		color, label = m.theme.Connection.Open, "live"
	case live.Connecting:
		color, label = m.theme.Connection.Connecting, "connecting"
	case live.Closing:
		color, label = m.theme.Connection.Connecting, "closing"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("● " + label)
}

func (m *Model) renderFooter() string {
	if m.status != "" {
		if m.statusErr {
			return m.theme.ErrorText().Render(m.status)
		}
		return m.theme.Footer().Render(m.status)
	}
	if m.view.LastError != nil {
		return m.theme.ErrorText().Render(describeError(m.view.LastError))
	}
	if m.showHelp {
		return m.theme.Footer().Render("j/k move · enter open · tab composer · esc roster · ctrl+r reload · pgup/pgdn scroll · ctrl+o sign out · q quit")
	}
	return m.theme.Footer().Render("tab switch pane · enter open/send · ? help · q quit")
}

func (m *Model) renderRoster(width, height int) string {
	inner := width - 2
	if inner < 1 {
		inner = 1
	}
	lines := make([]string, 0, len(m.view.Roster)*2)
	if m.view.RosterLoading && len(m.view.Roster) == 0 {
		lines = append(lines, m.theme.Muted().Render("Loading…"))
	}
	for i, entry := range m.view.Roster {
		marker := "  "
		if entry.ID == m.view.Selected {
			marker = "▸ "
		}
		name := truncate(marker+entry.Label(), inner)
		if i == m.cursor && m.focus == focusRoster {
			name = m.theme.Selected().Render(name)
		} else {
			name = m.msgStyles.Identities.Foreground(entry.ID).Render(name)
		}
		summary := "  " + m.view.Preview(entry.ID, inner-2)
		if last, ok := m.view.Previews[entry.ID]; ok {
			summary = "  " + previewTime(last.ID) + " " + m.view.Preview(entry.ID, inner-8)
		}
		lines = append(lines, name, m.theme.Muted().Render(truncate(summary, inner)))
	}
	content := strings.Join(lines, "\n")
	return styles.PanelStyle(m.theme, m.focus == focusRoster).
		Width(inner).
		Height(maxInt(height-2, 1)).
		Render(content)
}

func (m *Model) renderConversation(width, height int) string {
	inner := width - 2
	if inner < 1 {
		inner = 1
	}

	title := m.theme.Muted().Render("Pick a conversation")
	if m.view.Selected != "" {
		label := m.view.Selected
		if entry, ok := m.view.Counterparty(m.view.Selected); ok {
			label = entry.Label()
		}
		title = m.theme.Accent().Render(label)
		if pending := m.view.PendingCount(); pending > 0 {
			title += m.theme.Muted().Render(fmt.Sprintf("  (%d sending)", pending))
		}
	}

	thread := m.thread.View()
	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		thread,
		styles.DividerStyle(m.theme).Render(strings.Repeat("─", inner)),
		m.composer.View(),
	)
	return styles.PanelStyle(m.theme, m.focus == focusComposer).
		Width(inner).
		Height(maxInt(height-2, 1)).
		Render(content)
}

// renderMessages renders the thread body for the viewport.
func (m *Model) renderMessages(width int) string {
	switch {
	case m.view.Selected == "":
		return ""
	case m.view.Loading && len(m.view.Messages) == 0:
		return m.theme.Muted().Render("Loading…")
	case len(m.view.Messages) == 0:
		return m.theme.Muted().Render(preview.NoMessages)
	}

	self := m.view.Principal.ID
	blocks := make([]string, 0, len(m.view.Messages))
	for _, msg := range m.view.Messages {
		own := msg.IsFrom(self)
		author := m.authorLabel(msg, own)
		blocks = append(blocks,
			m.msgStyles.RenderHeader(author, msg.ID.Time(), own, msg.Pending)+"\n"+
				m.msgStyles.RenderBody(msg.Text, width, msg.Pending))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) authorLabel(msg chat.Message, own bool) string {
	if own {
		return "you"
	}
	if entry, ok := m.view.Counterparty(msg.From); ok {
		return entry.Label()
	}
	return msg.From
}

func (m *Model) renderLogin() string {
	f := &m.login
	lines := []string{
		m.theme.Header().Render("parley"),
		"",
		f.email.View(),
		f.password.View(),
		"",
	}
	switch {
	case f.busy:
		lines = append(lines, m.theme.Muted().Render("Signing in…"))
	case f.err != "":
		lines = append(lines, m.theme.ErrorText().Render(f.err))
	case m.view.LastError != nil:
		lines = append(lines, m.theme.ErrorText().Render(describeError(m.view.LastError)))
	default:
		help := "enter sign in · tab switch field · esc quit"
		if _, ok := m.federated(); ok {
			help = "enter sign in · ctrl+g google · tab switch field · esc quit"
		}
		lines = append(lines, m.theme.Footer().Render(help))
	}
	form := styles.PanelStyle(m.theme, true).Padding(1, 2).Render(strings.Join(lines, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

// previewTime is the clock time of a roster preview.
func previewTime(id chat.MessageID) string {
	return id.Time().Local().Format("15:04")
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
