package engine

import (
	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/live"
	"github.com/tOgg1/parley/internal/preview"
	"github.com/tOgg1/parley/internal/session"
)

// View is an immutable snapshot of everything the UI renders.
type View struct {
	Session   session.State
	Principal chat.Principal

	Roster        []chat.Counterparty
	RosterLoading bool

	Selected       string
	ConversationID chat.ConversationID
	Messages       []chat.Message
	Loading        bool
	Draft          string

	Previews map[string]chat.Message
	Channel  live.State

	// LastError is the most recent user-visible failure, cleared by the next
	// successful action of the same kind.
	LastError error
}

// Preview returns the roster preview line for counterpartyID.
func (v View) Preview(counterpartyID string, width int) string {
	msg, ok := v.Previews[counterpartyID]
	if !ok {
		return preview.Summary(nil, width)
	}
	return preview.Summary(&msg, width)
}

// Counterparty returns the roster entry for id.
func (v View) Counterparty(id string) (chat.Counterparty, bool) {
	for _, entry := range v.Roster {
		if entry.ID == id {
			return entry, true
		}
	}
	return chat.Counterparty{}, false
}

// PendingCount returns the number of unconfirmed local echoes.
func (v View) PendingCount() int {
	n := 0
	for _, msg := range v.Messages {
		if msg.Pending {
			n++
		}
	}
	return n
}
