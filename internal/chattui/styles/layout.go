package styles

import "github.com/charmbracelet/lipgloss"

const (
	// LayoutGap is the default space between columns.
	LayoutGap = 1

	// LayoutInnerPadding is the default panel content padding.
	LayoutInnerPadding = 0
)

const (
	minRosterWidth       = 18
	maxRosterWidth       = 40
	minConversationWidth = 30
)

// ColumnWidths are the roster and conversation pane widths.
type ColumnWidths struct {
	Roster       int
	Conversation int
}

// ComputeColumnWidths splits totalWidth between the roster and the open
// conversation. Narrow terminals hide the roster.
func ComputeColumnWidths(totalWidth int) ColumnWidths {
	if totalWidth <= 0 {
		return ColumnWidths{}
	}
	if totalWidth < minRosterWidth+minConversationWidth+LayoutGap {
		return ColumnWidths{Conversation: totalWidth}
	}

	roster := clampInt(totalWidth/3, minRosterWidth, maxRosterWidth)
	conversation := totalWidth - roster - LayoutGap
	if conversation < minConversationWidth {
		roster -= minConversationWidth - conversation
		conversation = minConversationWidth
	}
	return ColumnWidths{Roster: roster, Conversation: conversation}
}

// PanelStyle returns a focused/unfocused border style for panes.
func PanelStyle(theme Theme, focused bool) lipgloss.Style {
	return lipgloss.NewStyle().
		BorderStyle(panelBorderStyle(theme)).
		BorderForeground(lipgloss.Color(panelBorderColor(theme, focused))).
		Padding(LayoutInnerPadding)
}

// DividerStyle returns the divider style between sections.
func DividerStyle(theme Theme) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Borders.Divider))
}

func panelBorderColor(theme Theme, focused bool) string {
	if focused {
		return theme.Borders.ActivePane
	}
	return theme.Borders.InactivePane
}

func panelBorderStyle(theme Theme) lipgloss.Border {
	switch theme.BorderStyle {
	case "double":
		return lipgloss.DoubleBorder()
	case "sharp":
		return lipgloss.NormalBorder()
	case "hidden":
		return lipgloss.HiddenBorder()
	default:
		return lipgloss.RoundedBorder()
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
