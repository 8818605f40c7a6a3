package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tOgg1/parley/internal/chat"
)

// FrameTypeMessage is the only frame type the service sends today.
const FrameTypeMessage = "message"

// OutboundFrame is a message sent over the push channel.
type OutboundFrame struct {
	Type  string `json:"type"`
	To    string `json:"to"`
	Text  string `json:"text"`
	Token string `json:"token"`
}

// InboundFrame is a push event from the service.
type InboundFrame struct {
	Type    string              `json:"type"`
	ChatID  chat.ConversationID `json:"chatId"`
	Message *chat.Message       `json:"message,omitempty"`
}

// EventKind tags an Event.
type EventKind int

const (
	// EventMessage carries an inbound message.
	EventMessage EventKind = iota
	// EventState reports a connection state transition.
	EventState
	// EventError reports an undecodable frame; the connection stays up.
	EventError
	// EventUndelivered returns an outbound message that Send accepted but
	// the connection never wrote. Message carries To and Text.
	EventUndelivered
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventState:
		return "state"
	case EventError:
		return "error"
	case EventUndelivered:
		return "undelivered"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one item of the inbound stream. Which fields are set depends on
// Kind.
type Event struct {
	Kind    EventKind
	State   State
	ChatID  chat.ConversationID
	Message chat.Message
	Err     error
}

// EncodeMessage builds an outbound message frame.
func EncodeMessage(to, text, token string) ([]byte, error) {
	return json.Marshal(OutboundFrame{
		Type:  FrameTypeMessage,
		To:    to,
		Text:  text,
		Token: token,
	})
}

// undeliveredEvent rebuilds the message carried by an outbound frame.
func undeliveredEvent(data []byte) (Event, error) {
	var frame OutboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Event{}, fmt.Errorf("decode outbound frame: %w", err)
	}
	return Event{
		Kind:    EventUndelivered,
		Message: chat.Message{To: frame.To, Text: frame.Text},
	}, nil
}

// DecodeFrame converts a raw inbound frame into an Event. ok is false for
// frame types this client does not handle.
func DecodeFrame(data []byte) (event Event, ok bool) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Event{Kind: EventError, Err: fmt.Errorf("decode frame: %w", err)}, true
	}
	if strings.TrimSpace(frame.Type) != FrameTypeMessage {
		return Event{}, false
	}
	if frame.Message == nil {
		return Event{Kind: EventError, Err: errors.New("message frame without message")}, true
	}
	msg := *frame.Message
	if msg.ConversationID == "" {
		msg.ConversationID = frame.ChatID
	}
	return Event{
		Kind:    EventMessage,
		ChatID:  frame.ChatID,
		Message: msg,
	}, true
}
