package preview

import "github.com/tOgg1/parley/internal/chat"

// DefaultSummaryWidth is the roster preview width in runes.
const DefaultSummaryWidth = 30

// NoMessages is shown for a counterparty with no preview.
const NoMessages = "No messages yet."

// Summary shortens msg text for a roster line.
func Summary(msg *chat.Message, width int) string {
	if msg == nil {
		return NoMessages
	}
	if width <= 0 {
		width = DefaultSummaryWidth
	}
	runes := []rune(msg.Text)
	if len(runes) <= width {
		return msg.Text
	}
	return string(runes[:width]) + "..."
}
