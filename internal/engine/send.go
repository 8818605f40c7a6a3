package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/live"
)

// sendPath records which transport carried a submission.
type sendPath int

const (
	viaChannel sendPath = iota
	viaHTTP
)

func (p sendPath) String() string {
	if p == viaChannel {
		return "channel"
	}
	return "http"
}

// outgoing is one submission in flight.
type outgoing struct {
	epoch      uint64
	generation uint64
	to         string
	body       string
	// draft is the composer text at submit time.
	draft    string
	clientID string
	// cleared is set when the composer was emptied before the server
	// accepted the message.
	cleared bool
}

// Submit sends text to the open conversation.
//
// Whitespace-only text fails with chat.ErrValidation before any network
// call and leaves the draft alone. With the push channel Open the message is
// written to it and the draft is cleared at once. Otherwise the message is
// posted over HTTP exactly once; the draft is cleared only after that
// succeeds and a failure surfaces in View.LastError.
func (e *Engine) Submit(ctx context.Context, text string) error {
	body, err := chat.NormalizeText(text)
	if err != nil {
		return err
	}
	return e.call(ctx, func(e *Engine) error {
		if !e.signedIn() {
			return chat.ErrUnauthorized
		}
		if e.selected == "" {
			return chat.ErrNoSelection
		}
		e.submit(body)
		return nil
	})
}

func (e *Engine) submit(body string) {
	out := outgoing{
		epoch:      e.epoch,
		generation: e.selection,
		to:         e.selected,
		body:       body,
		draft:      e.draft,
		clientID:   e.appendEcho(e.selected, body),
	}

	path := viaHTTP
	if e.channel.State() == live.Open {
		path = viaChannel
		out.cleared = true
		e.clearDraft()
	}
	e.lastErr = nil

	e.logger.Debug().
		Str("counterparty_id", out.to).
		Stringer("path", path).
		Bool("local_echo", out.clientID != "").
		Msg("submitting message")

	e.background(func(ctx context.Context) {
		used, err := e.deliver(ctx, path, out.to, out.body)
		e.post(func(e *Engine) { e.applySend(out, used, err) })
	})
}

// deliver runs off the loop and returns the transport that carried the
// message. A channel write that finds the connection gone falls back to a
// single HTTP post.
func (e *Engine) deliver(ctx context.Context, path sendPath, to, body string) (sendPath, error) {
	if path == viaChannel {
		token, err := e.session.Token(ctx)
		if err != nil {
			return viaChannel, err
		}
		err = e.channel.Send(to, body, token)
		if !errors.Is(err, chat.ErrChannelUnavailable) {
			return viaChannel, err
		}
		e.logger.Debug().Err(err).Msg("push channel unavailable, posting over http")
	}
	return viaHTTP, e.api.PostMessage(ctx, to, body)
}

// redeliver posts a message the push channel accepted but never wrote.
func (e *Engine) redeliver(to, body string) {
	out := outgoing{
		epoch:      e.epoch,
		generation: e.selection,
		to:         to,
		body:       body,
		cleared:    true,
	}
	if e.selected == to {
		out.clientID = e.pendingEcho(to, body)
	}
	e.logger.Info().Str("counterparty_id", to).Msg("push write lost, posting over http")

	e.background(func(ctx context.Context) {
		err := e.api.PostMessage(ctx, to, body)
		e.post(func(e *Engine) { e.applySend(out, viaHTTP, err) })
	})
}

func (e *Engine) applySend(out outgoing, used sendPath, err error) {
	if !e.current(out.epoch) {
		return
	}
	sameConversation := out.generation == e.selection && e.selected == out.to

	if err != nil {
		e.logger.Warn().Err(err).Str("counterparty_id", out.to).Stringer("path", used).Msg("send failed")
		e.lastErr = err
		if sameConversation {
			e.dropEcho(out.clientID)
		}
		if out.cleared {
			e.restoreDraft(out)
		}
		return
	}

	if used != viaHTTP || !sameConversation {
		return
	}
	e.confirmEcho(out.clientID)
	// Keep anything typed while the post was in flight.
	if !out.cleared && e.draft == out.draft {
		e.clearDraft()
	}
}

// restoreDraft puts back text the composer gave up before a send failed,
// unless something new has been typed since.
func (e *Engine) restoreDraft(out outgoing) {
	body := out.draft
	if body == "" {
		body = out.body
	}
	if e.selected == out.to {
		if e.draft == "" {
			e.draft = body
			e.persistDraft()
		}
		return
	}
	if e.drafts == nil {
		return
	}
	saved, err := e.drafts.Draft(e.ctx, e.principal.ID, out.to)
	if err != nil || saved != "" {
		return
	}
	if err := e.drafts.SaveDraft(e.ctx, e.principal.ID, out.to, body); err != nil {
		e.logger.Debug().Err(err).Msg("restore draft failed")
	}
}

func (e *Engine) clearDraft() {
	e.draft = ""
	if e.drafts == nil || !e.signedIn() || e.selected == "" {
		return
	}
	if err := e.drafts.DeleteDraft(e.ctx, e.principal.ID, e.selected); err != nil {
		e.logger.Debug().Err(err).Msg("delete draft failed")
	}
}

// appendEcho adds a provisional copy of an outgoing message and returns its
// client id, or "" when local echo is off.
func (e *Engine) appendEcho(to, body string) string {
	if !e.localEcho {
		return ""
	}
	self := e.principal.ID
	msg := chat.Message{
		ID:       chat.NewMessageID(e.now()),
		From:     self,
		To:       to,
		Text:     body,
		ClientID: uuid.NewString(),
		Pending:  true,
	}
	msg.ConversationID, _ = chat.ResolveConversationID(self, to)
	e.messages = append(e.messages, msg)
	return msg.ClientID
}

// pendingEcho returns the client id of the oldest unconfirmed echo of body.
func (e *Engine) pendingEcho(to, body string) string {
	for _, msg := range e.messages {
		if msg.Pending && msg.To == to && msg.Text == body {
			return msg.ClientID
		}
	}
	return ""
}

// reconcileEcho replaces the oldest local echo matching an inbound copy of
// our own message. Echoes already confirmed over HTTP still match: the
// server broadcasts the stored copy afterwards. It reports whether one was
// replaced.
func (e *Engine) reconcileEcho(msg chat.Message) bool {
	if !msg.IsFrom(e.principal.ID) {
		return false
	}
	for i, existing := range e.messages {
		if existing.ClientID != "" && existing.To == msg.To && existing.Text == msg.Text {
			e.messages[i] = msg
			return true
		}
	}
	return false
}

// confirmEcho marks an echo accepted by the server. It keeps its client id
// until the server copy arrives.
func (e *Engine) confirmEcho(clientID string) {
	if clientID == "" {
		return
	}
	for i := range e.messages {
		if e.messages[i].ClientID == clientID {
			e.messages[i].Pending = false
			return
		}
	}
}

func (e *Engine) dropEcho(clientID string) {
	if clientID == "" {
		return
	}
	for i, msg := range e.messages {
		if msg.ClientID == clientID {
			e.messages = append(e.messages[:i:i], e.messages[i+1:]...)
			return
		}
	}
}
