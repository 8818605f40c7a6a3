package styles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeColumnWidths(t *testing.T) {
	require.Equal(t, ColumnWidths{}, ComputeColumnWidths(0))
	require.Equal(t, ColumnWidths{Conversation: 40}, ComputeColumnWidths(40))

	w := ComputeColumnWidths(120)
	require.Equal(t, 40, w.Roster)
	require.Equal(t, 120-40-LayoutGap, w.Conversation)

	w = ComputeColumnWidths(60)
	require.Equal(t, 20, w.Roster)
	require.GreaterOrEqual(t, w.Conversation, minConversationWidth)
}

func TestIdentityColorsStable(t *testing.T) {
	m := NewIdentityColors(nil)
	require.Equal(t, m.ColorCode("u2"), m.ColorCode(" U2 "))
	require.Contains(t, IdentityPalette, m.ColorCode("someone"))
}

func TestLookupFallsBack(t *testing.T) {
	require.Equal(t, "high-contrast", Lookup("high-contrast").Name)
	require.Equal(t, "default", Lookup("nope").Name)
}

func TestWrapText(t *testing.T) {
	wrapped := WrapText("the quick brown fox jumps", 10)
	for _, line := range strings.Split(wrapped, "\n") {
		require.LessOrEqual(t, len(strings.TrimRight(line, " ")), 10)
	}
	require.Equal(t, "a\nb", WrapText("a\nb", 0))
}
