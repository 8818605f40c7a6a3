// Package preview keeps the latest message per counterparty.
//
// Every write goes through Upsert, which only accepts a message whose id is
// strictly greater than the cached one. Completion order of history fetches
// and push events therefore never decides the winner; message ids do.
package preview

import (
	"strings"
	"sync"

	"github.com/tOgg1/parley/internal/chat"
)

// Cache maps counterparty id to that conversation's most recent message.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]chat.Message
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]chat.Message)}
}

// Upsert stores msg as the preview for counterpartyID if it is newer than the
// cached message. Provisional local echoes are never cached. It reports
// whether the cache changed.
func (c *Cache) Upsert(counterpartyID string, msg chat.Message) bool {
	counterpartyID = strings.TrimSpace(counterpartyID)
	if counterpartyID == "" || msg.Pending {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[counterpartyID]; ok && msg.ID <= prev.ID {
		return false
	}
	c.entries[counterpartyID] = msg
	return true
}

// UpsertTail seeds the preview from the last message of a history result.
func (c *Cache) UpsertTail(counterpartyID string, history []chat.Message) bool {
	if len(history) == 0 {
		return false
	}
	return c.Upsert(counterpartyID, history[len(history)-1])
}

// Get returns the cached preview for counterpartyID.
func (c *Cache) Get(counterpartyID string) (chat.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msg, ok := c.entries[counterpartyID]
	return msg, ok
}

// Preview returns the cached entry in ConversationPreview form.
func (c *Cache) Preview(counterpartyID string) chat.ConversationPreview {
	preview := chat.ConversationPreview{CounterpartyID: counterpartyID}
	if msg, ok := c.Get(counterpartyID); ok {
		preview.LastMessage = &msg
	}
	return preview
}

// Snapshot copies the cache.
func (c *Cache) Snapshot() map[string]chat.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]chat.Message, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Reset drops every entry. Called on sign-out.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]chat.Message)
}
