package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/parley/internal/chat"
)

func TestRouteMessage(t *testing.T) {
	tests := []struct {
		name     string
		selected string
		chatID   chat.ConversationID
		msg      chat.Message
		want     Route
	}{
		{
			name:     "inbound for open conversation",
			selected: "u2",
			chatID:   "u1_u2",
			msg:      chat.Message{ID: 1, From: "u2", To: "u1"},
			want:     Route{Counterparty: "u2", ConversationID: "u1_u2", Visible: true},
		},
		{
			name:     "own message echoed back",
			selected: "u2",
			chatID:   "u1_u2",
			msg:      chat.Message{ID: 2, From: "u1", To: "u2"},
			want:     Route{Counterparty: "u2", ConversationID: "u1_u2", Visible: true},
		},
		{
			name:     "missing chatId trusts participants",
			selected: "u2",
			msg:      chat.Message{ID: 3, From: "u2", To: "u1"},
			want:     Route{Counterparty: "u2", ConversationID: "u1_u2", Visible: true},
		},
		{
			name:     "other conversation",
			selected: "u2",
			chatID:   "u1_u3",
			msg:      chat.Message{ID: 4, From: "u3", To: "u1"},
			want:     Route{Counterparty: "u3", ConversationID: "u1_u3"},
		},
		{
			name:     "frame chatId disagrees",
			selected: "u2",
			chatID:   "u1_u3",
			msg:      chat.Message{ID: 5, From: "u2", To: "u1"},
			want:     Route{Counterparty: "u2", ConversationID: "u1_u2"},
		},
		{
			name:   "nothing selected",
			chatID: "u1_u2",
			msg:    chat.Message{ID: 6, From: "u2", To: "u1"},
			want:   Route{Counterparty: "u2", ConversationID: "u1_u2"},
		},
		{
			name:     "self conversation",
			selected: "u1",
			chatID:   "u1_u1",
			msg:      chat.Message{ID: 7, From: "u1", To: "u1"},
			want:     Route{Counterparty: "u1", ConversationID: "u1_u1", Visible: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RouteMessage("u1", tt.selected, tt.chatID, tt.msg)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRouteMessageRejectsForeignMessage(t *testing.T) {
	_, err := RouteMessage("u1", "u2", "u2_u3", chat.Message{ID: 1, From: "u2", To: "u3"})
	require.ErrorIs(t, err, chat.ErrInvalidParticipant)
}

func TestMergeHistoryKeepsNewerAndPending(t *testing.T) {
	history := []chat.Message{{ID: 1}, {ID: 5}}
	current := []chat.Message{
		{ID: 3},
		{ID: 9},
		{ID: 2, Pending: true, ClientID: "c1"},
		{ID: 4, ClientID: "c2"},
	}
	got := mergeHistory(history, current)
	require.Equal(t, []chat.Message{
		{ID: 1},
		{ID: 5},
		{ID: 9},
		{ID: 2, Pending: true, ClientID: "c1"},
		{ID: 4, ClientID: "c2"},
	}, got)
}
