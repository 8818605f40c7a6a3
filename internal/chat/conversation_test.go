package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveConversationIDSymmetric(t *testing.T) {
	ids := []string{"u1", "u2", "u3", "alice", "Bob", "zz-top", "0"}
	for _, a := range ids {
		for _, b := range ids {
			ab, err := ResolveConversationID(a, b)
			require.NoError(t, err)
			ba, err := ResolveConversationID(b, a)
			require.NoError(t, err)
			require.Equal(t, ab, ba, "resolve(%q,%q)", a, b)
		}
	}
}

func TestResolveConversationIDDistinct(t *testing.T) {
	seen := make(map[ConversationID]string)
	for i := 0; i < 50; i++ {
		b := fmt.Sprintf("peer%d", i)
		id := MustResolveConversationID("u1", b)
		prev, dup := seen[id]
		require.False(t, dup, "%s collides with %s", b, prev)
		seen[id] = b
	}
}

func TestResolveConversationIDFormat(t *testing.T) {
	require.Equal(t, ConversationID("u1_u2"), MustResolveConversationID("u2", "u1"))
	require.Equal(t, ConversationID("u1_u1"), MustResolveConversationID("u1", "u1"))

	_, err := ResolveConversationID("", "u1")
	require.ErrorIs(t, err, ErrInvalidParticipant)
	_, err = ResolveConversationID("u1", "   ")
	require.ErrorIs(t, err, ErrInvalidParticipant)
}
