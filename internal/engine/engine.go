// Package engine owns the conversation view and coordinates every
// asynchronous source that writes to it: session changes, history and roster
// fetches, push events and send outcomes.
//
// All state lives on the goroutine running Run. Public methods and background
// results are queued as actions on one channel and applied in order, so no
// field needs a lock. Background results carry the session epoch and the
// selection generation they were issued for and are dropped when either has
// moved on.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/api"
	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/live"
	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/preview"
	"github.com/tOgg1/parley/internal/session"
)

// ErrNotRunning is returned when the engine loop has exited or never started.
var ErrNotRunning = errors.New("engine not running")

// Session is the part of session.Manager the engine needs.
type Session interface {
	Subscribe() (<-chan session.Change, func())
	Token(ctx context.Context) (string, error)
}

// API is the request/response service.
type API interface {
	LoadRoster(ctx context.Context) ([]chat.Counterparty, error)
	LoadHistory(ctx context.Context, counterpartyID string) ([]chat.Message, error)
	PostMessage(ctx context.Context, counterpartyID, text string) error
}

// Channel is the push connection.
type Channel interface {
	Start(ctx context.Context) error
	Stop()
	State() live.State
	Send(to, text, token string) error
	Events() <-chan live.Event
}

// Drafts persists drafts and the last selection. Optional.
type Drafts interface {
	SaveDraft(ctx context.Context, principalID, counterpartyID, body string) error
	Draft(ctx context.Context, principalID, counterpartyID string) (string, error)
	DeleteDraft(ctx context.Context, principalID, counterpartyID string) error
	SaveSelection(ctx context.Context, principalID, counterpartyID string) error
	LastSelection(ctx context.Context, principalID string) (string, error)
}

// Config wires an Engine.
type Config struct {
	Session  Session
	API      API
	Channel  Channel
	Drafts   Drafts
	Previews *preview.Cache

	// LocalEcho shows outgoing messages as pending until the server
	// confirms them.
	LocalEcho          bool
	PreviewConcurrency int
	// RequestTimeout bounds each background fetch and send.
	RequestTimeout time.Duration

	Logger *zerolog.Logger
	Now    func() time.Time
}

const (
	defaultRequestTimeout = 15 * time.Second
	actionBuffer          = 64
)

type action func(e *Engine)

// Engine is the client-side state machine behind the UI.
type Engine struct {
	session            Session
	api                API
	channel            Channel
	drafts             Drafts
	previews           *preview.Cache
	localEcho          bool
	previewConcurrency int
	requestTimeout     time.Duration
	logger             zerolog.Logger
	now                func() time.Time

	actions chan action
	updates chan struct{}
	view    atomic.Pointer[View]

	startOnce sync.Once
	done      chan struct{}

	// Loop-owned state. Only touched from Run.
	ctx          context.Context
	sessionState session.State
	principal    chat.Principal
	epoch        uint64
	roster       []chat.Counterparty
	rosterLoad   bool
	selected     string
	selection    uint64
	messages     []chat.Message
	loading      bool
	draft        string
	channelState live.State
	channelUp    bool
	lastErr      error
}

// New validates cfg and returns an idle Engine. Call Run to start it.
func New(cfg Config) (*Engine, error) {
	if cfg.Session == nil || cfg.API == nil || cfg.Channel == nil {
		return nil, errors.New("engine requires session, api and channel")
	}
	e := &Engine{
		session:            cfg.Session,
		api:                cfg.API,
		channel:            cfg.Channel,
		drafts:             cfg.Drafts,
		previews:           cfg.Previews,
		localEcho:          cfg.LocalEcho,
		previewConcurrency: cfg.PreviewConcurrency,
		requestTimeout:     cfg.RequestTimeout,
		logger:             logging.Component("engine"),
		now:                cfg.Now,
		actions:            make(chan action, actionBuffer),
		updates:            make(chan struct{}, 1),
		done:               make(chan struct{}),
	}
	if e.previews == nil {
		e.previews = preview.New()
	}
	if e.previewConcurrency <= 0 {
		e.previewConcurrency = api.DefaultPreviewConcurrency
	}
	if e.requestTimeout <= 0 {
		e.requestTimeout = defaultRequestTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	if cfg.Logger != nil {
		e.logger = *cfg.Logger
	}
	e.publish()
	return e, nil
}

// Run processes actions until ctx is cancelled. It may only be called once.
func (e *Engine) Run(ctx context.Context) error {
	started := false
	e.startOnce.Do(func() { started = true })
	if !started {
		return errors.New("engine already running")
	}
	defer close(e.done)

	changes, unsubscribe := e.session.Subscribe()
	defer unsubscribe()
	defer e.channel.Stop()

	e.ctx = ctx
	events := e.channel.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			e.handleSession(change)
		case event := <-events:
			e.handleLive(event)
		case act := <-e.actions:
			act(e)
		}
		e.publish()
	}
}

// Snapshot returns the latest view.
func (e *Engine) Snapshot() View {
	return *e.view.Load()
}

// Updates signals after the view changed. Signals coalesce; read Snapshot
// after each one.
func (e *Engine) Updates() <-chan struct{} {
	return e.updates
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// enqueue hands act to the loop.
func (e *Engine) enqueue(ctx context.Context, act action) error {
	select {
	case e.actions <- act:
		return nil
	case <-e.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the loop and waits for its error.
func (e *Engine) call(ctx context.Context, fn func(e *Engine) error) error {
	reply := make(chan error, 1)
	act := func(e *Engine) {
		err := fn(e)
		// Callers read Snapshot right after; make it reflect the call.
		e.publish()
		reply <- err
	}
	if err := e.enqueue(ctx, act); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers a background result. Results for a stopped loop are dropped.
func (e *Engine) post(act action) {
	select {
	case e.actions <- act:
	case <-e.done:
	}
}

// background runs fn off the loop with a request-scoped context.
func (e *Engine) background(fn func(ctx context.Context)) {
	parent := e.ctx
	go func() {
		ctx, cancel := context.WithTimeout(parent, e.requestTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (e *Engine) publish() {
	previews := e.previews.Snapshot()
	view := &View{
		Session:        e.sessionState,
		Principal:      e.principal,
		Roster:         append([]chat.Counterparty(nil), e.roster...),
		RosterLoading:  e.rosterLoad,
		Selected:       e.selected,
		ConversationID: e.conversationID(),
		Messages:       append([]chat.Message(nil), e.messages...),
		Loading:        e.loading,
		Draft:          e.draft,
		Previews:       previews,
		Channel:        e.channelState,
		LastError:      e.lastErr,
	}
	e.view.Store(view)
	select {
	case e.updates <- struct{}{}:
	default:
	}
}

func (e *Engine) signedIn() bool {
	return e.sessionState == session.SignedIn && e.principal.ID != ""
}

func (e *Engine) conversationID() chat.ConversationID {
	if e.principal.ID == "" || e.selected == "" {
		return ""
	}
	id, _ := chat.ResolveConversationID(e.principal.ID, e.selected)
	return id
}

// handleSession applies a session transition.
func (e *Engine) handleSession(change session.Change) {
	prevState, prevEpoch := e.sessionState, e.epoch
	e.sessionState = change.State

	switch change.State {
	case session.SignedIn:
		if prevState == session.SignedIn && prevEpoch == change.Epoch {
			return
		}
		e.resetView()
		e.principal = change.Principal
		e.epoch = change.Epoch
		e.lastErr = nil
		logger := logging.WithPrincipal(e.logger, e.principal.ID)
		logger.Info().Uint64("epoch", e.epoch).Msg("session started")
		e.startChannel()
		e.loadRoster()
	case session.SignedOut:
		if e.channelUp {
			e.channel.Stop()
			e.channelUp = false
		}
		if prevState != session.SignedOut {
			e.logger.Info().Uint64("epoch", change.Epoch).Msg("session ended")
		}
		e.resetView()
		e.principal = chat.Principal{}
		e.epoch = change.Epoch
		e.lastErr = change.Err
	case session.Authenticating:
	}
}

func (e *Engine) startChannel() {
	if e.channelUp {
		return
	}
	if err := e.channel.Start(e.ctx); err != nil && !errors.Is(err, live.ErrAlreadyStarted) {
		e.logger.Warn().Err(err).Msg("push channel start failed")
		return
	}
	e.channelUp = true
}

func (e *Engine) resetView() {
	e.roster = nil
	e.rosterLoad = false
	e.selected = ""
	e.selection++
	e.messages = nil
	e.loading = false
	e.draft = ""
	e.previews.Reset()
}

// current reports whether a result issued at epoch is still relevant.
func (e *Engine) current(epoch uint64) bool {
	return e.signedIn() && e.epoch == epoch
}

func (e *Engine) loadRoster() {
	epoch, self := e.epoch, e.principal.ID
	e.rosterLoad = true
	e.background(func(ctx context.Context) {
		roster, err := e.api.LoadRoster(ctx)
		e.post(func(e *Engine) { e.applyRoster(epoch, roster, err) })
		if err != nil {
			return
		}
		previews, err := api.LoadPreviews(ctx, e.api, roster, self, e.previewConcurrency)
		e.post(func(e *Engine) { e.applyPreviews(epoch, previews, err) })
	})
}

func (e *Engine) applyRoster(epoch uint64, roster []chat.Counterparty, err error) {
	if !e.current(epoch) {
		return
	}
	e.rosterLoad = false
	if err != nil {
		e.logger.Warn().Err(err).Msg("roster load failed")
		e.lastErr = err
		return
	}
	e.roster = api.FilterRoster(roster, e.principal.ID)
	if e.selected == "" {
		e.restoreSelection()
	}
}

func (e *Engine) applyPreviews(epoch uint64, previews map[string]chat.Message, err error) {
	if !e.current(epoch) {
		return
	}
	if err != nil {
		e.logger.Warn().Err(err).Msg("preview load failed")
	}
	for id, msg := range previews {
		e.previews.Upsert(id, msg)
	}
}

func (e *Engine) restoreSelection() {
	if e.drafts == nil {
		return
	}
	last, err := e.drafts.LastSelection(e.ctx, e.principal.ID)
	if err != nil {
		e.logger.Debug().Err(err).Msg("last selection unavailable")
		return
	}
	if last == "" {
		return
	}
	for _, entry := range e.roster {
		if entry.ID == last {
			e.selectCounterparty(last)
			return
		}
	}
}

// Select opens the conversation with counterpartyID.
func (e *Engine) Select(ctx context.Context, counterpartyID string) error {
	id, err := chat.NormalizeParticipantID(counterpartyID)
	if err != nil {
		return err
	}
	return e.call(ctx, func(e *Engine) error {
		if !e.signedIn() {
			return chat.ErrUnauthorized
		}
		e.selectCounterparty(id)
		return nil
	})
}

func (e *Engine) selectCounterparty(id string) {
	if id == e.principal.ID {
		e.logger.Debug().Str("counterparty_id", id).Msg("selected self-conversation")
	}
	e.selection++
	e.selected = id
	e.messages = nil
	e.loading = true
	e.lastErr = nil
	e.draft = e.loadDraft(id)
	if e.drafts != nil {
		if err := e.drafts.SaveSelection(e.ctx, e.principal.ID, id); err != nil {
			e.logger.Debug().Err(err).Msg("save selection failed")
		}
	}

	epoch, generation := e.epoch, e.selection
	e.background(func(ctx context.Context) {
		history, err := e.api.LoadHistory(ctx, id)
		if errors.Is(err, chat.ErrNotFound) {
			history, err = []chat.Message{}, nil
		}
		e.post(func(e *Engine) { e.applyHistory(epoch, generation, id, history, err) })
	})
}

func (e *Engine) applyHistory(epoch, generation uint64, id string, history []chat.Message, err error) {
	if !e.current(epoch) {
		return
	}
	if err == nil {
		// Any history is valid preview material, even for a stale selection.
		e.previews.UpsertTail(id, history)
	}
	if generation != e.selection {
		return
	}
	e.loading = false
	if err != nil {
		e.logger.Warn().Err(err).Str("counterparty_id", id).Msg("history load failed")
		e.lastErr = err
		return
	}
	e.messages = mergeHistory(history, e.messages)
}

// mergeHistory replaces the view with history, keeping live arrivals newer
// than its tail and local echoes the server has not sent back yet.
func mergeHistory(history, current []chat.Message) []chat.Message {
	merged := append(make([]chat.Message, 0, len(history)+len(current)), history...)
	var tail chat.MessageID
	if len(history) > 0 {
		tail = history[len(history)-1].ID
	}
	for _, msg := range current {
		if msg.ClientID != "" || msg.ID > tail {
			merged = append(merged, msg)
		}
	}
	return merged
}

func (e *Engine) loadDraft(counterpartyID string) string {
	if e.drafts == nil {
		return ""
	}
	body, err := e.drafts.Draft(e.ctx, e.principal.ID, counterpartyID)
	if err != nil {
		e.logger.Debug().Err(err).Msg("draft unavailable")
		return ""
	}
	return body
}

// SetDraft records the composer text for the open conversation.
func (e *Engine) SetDraft(ctx context.Context, text string) error {
	return e.call(ctx, func(e *Engine) error {
		if e.selected == "" {
			return chat.ErrNoSelection
		}
		e.draft = text
		e.persistDraft()
		return nil
	})
}

func (e *Engine) persistDraft() {
	if e.drafts == nil || !e.signedIn() || e.selected == "" {
		return
	}
	if err := e.drafts.SaveDraft(e.ctx, e.principal.ID, e.selected, e.draft); err != nil {
		e.logger.Debug().Err(err).Msg("save draft failed")
	}
}

// Reload refetches the roster and previews.
func (e *Engine) Reload(ctx context.Context) error {
	return e.call(ctx, func(e *Engine) error {
		if !e.signedIn() {
			return chat.ErrUnauthorized
		}
		e.loadRoster()
		return nil
	})
}

// handleLive dispatches one push event.
func (e *Engine) handleLive(event live.Event) {
	switch event.Kind {
	case live.EventState:
		e.channelState = event.State
	case live.EventError:
		e.logger.Warn().Err(event.Err).Msg("bad push frame")
	case live.EventUndelivered:
		if !e.signedIn() {
			return
		}
		e.redeliver(event.Message.To, event.Message.Text)
	case live.EventMessage:
		if !e.signedIn() {
			return
		}
		e.receive(event.ChatID, event.Message)
	}
}

func (e *Engine) receive(frameChatID chat.ConversationID, msg chat.Message) {
	route, err := RouteMessage(e.principal.ID, e.selected, frameChatID, msg)
	if err != nil {
		e.logger.Debug().Err(err).Msg("dropping push message")
		return
	}
	msg.ConversationID = route.ConversationID
	msg.Pending = false
	e.previews.Upsert(route.Counterparty, msg)
	if frameChatID != "" && frameChatID != route.ConversationID {
		e.logger.Debug().
			Str("frame_chat_id", string(frameChatID)).
			Str("chat_id", string(route.ConversationID)).
			Msg("push chatId disagrees with participants")
	}
	if !route.Visible {
		return
	}
	if e.reconcileEcho(msg) {
		return
	}
	for _, existing := range e.messages {
		if !existing.Pending && existing.ClientID == "" && existing.ID == msg.ID {
			return
		}
	}
	e.messages = append(e.messages, msg)
}
