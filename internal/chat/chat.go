package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Principal is the authenticated user operating the client.
type Principal struct {
	ID          string `json:"uid"`
	DisplayName string `json:"name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar"`
}

// Label is the string shown for the principal in the UI.
func (p Principal) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}

// Credential is a bearer token bound to a Principal. It only ever lives in
// process memory.
type Credential struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
}

// ExpiresWithin reports whether the credential expires before now+skew.
// A zero ExpiresAt never expires.
func (c Credential) ExpiresWithin(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(c.ExpiresAt)
}

// Counterparty is a roster entry addressable as a conversation partner.
type Counterparty struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Label is the string shown for the counterparty in the roster.
func (c Counterparty) Label() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Email != "" {
		return c.Email
	}
	return c.ID
}

// MessageID orders messages. It is a millisecond timestamp assigned by the
// server (or by the local clock for a provisional echo).
type MessageID int64

// NewMessageID derives an id from t.
func NewMessageID(t time.Time) MessageID {
	return MessageID(t.UnixMilli())
}

// Time converts the id back into a timestamp.
func (id MessageID) Time() time.Time {
	return time.UnixMilli(int64(id))
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	s := strings.TrimSpace(string(data))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*id = MessageID(n)
		return nil
	}
	// Exponent or fraction forms such as 1.7e12.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("message id %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
		return fmt.Errorf("message id %q: out of range", s)
	}
	*id = MessageID(int64(f))
	return nil
}

// Message is immutable once created. ClientID and Pending are local echo
// bookkeeping and never leave the process.
type Message struct {
	ID             MessageID      `json:"id"`
	From           string         `json:"from"`
	To             string         `json:"to"`
	Text           string         `json:"text"`
	ConversationID ConversationID `json:"chatId,omitempty"`

	ClientID string `json:"-"`
	Pending  bool   `json:"-"`
}

// Counterparty returns the participant that is not self. A message not
// involving self returns "".
func (m Message) Counterparty(self string) string {
	switch self {
	case m.From:
		return m.To
	case m.To:
		return m.From
	default:
		return ""
	}
}

// IsFrom reports whether principalID authored the message.
func (m Message) IsFrom(principalID string) bool {
	return m.From == principalID
}

// ConversationPreview is the most recent message shown next to a roster entry.
type ConversationPreview struct {
	CounterpartyID string
	LastMessage    *Message
}
