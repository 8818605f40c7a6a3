package engine

import (
	"fmt"

	"github.com/tOgg1/parley/internal/chat"
)

// Route says where an inbound push message belongs.
type Route struct {
	// Counterparty keys the preview cache entry to update.
	Counterparty string
	// ConversationID is recomputed from the participants, never trusted
	// from the frame.
	ConversationID chat.ConversationID
	// Visible is true when the message belongs in the open conversation.
	Visible bool
}

// RouteMessage decides where msg goes for principal self with selected open.
// The frame's chatId, when present, must agree with the recomputed id for the
// message to be shown. Messages that do not involve self are rejected.
func RouteMessage(self, selected string, frameChatID chat.ConversationID, msg chat.Message) (Route, error) {
	counterparty := msg.Counterparty(self)
	if counterparty == "" {
		return Route{}, fmt.Errorf("%w: message %d from %q to %q does not involve %q",
			chat.ErrInvalidParticipant, msg.ID, msg.From, msg.To, self)
	}
	id, err := chat.ResolveConversationID(self, counterparty)
	if err != nil {
		return Route{}, err
	}

	route := Route{Counterparty: counterparty, ConversationID: id}
	if selected == "" {
		return route, nil
	}
	active, err := chat.ResolveConversationID(self, selected)
	if err != nil {
		return route, nil
	}
	route.Visible = id == active && (frameChatID == "" || frameChatID == id)
	return route, nil
}
