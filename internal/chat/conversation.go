package chat

import (
	"strings"
)

// ConversationSeparator joins the two sorted participant ids. Ids containing
// the separator can make two pairs collide; the server uses the same rule so
// it is not escaped here.
const ConversationSeparator = "_"

// ConversationID names the two-party thread between two participants.
type ConversationID string

// ResolveConversationID maps two participant ids to their canonical
// conversation id. It is symmetric and deterministic. ResolveConversationID
// does not reject a == b; self-conversations resolve to "a_a".
func ResolveConversationID(a, b string) (ConversationID, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", ErrInvalidParticipant
	}
	if b < a {
		a, b = b, a
	}
	return ConversationID(a + ConversationSeparator + b), nil
}

// MustResolveConversationID is ResolveConversationID for ids known to be valid.
func MustResolveConversationID(a, b string) ConversationID {
	id, err := ResolveConversationID(a, b)
	if err != nil {
		panic(err)
	}
	return id
}
