// Package chattui is the terminal UI: a roster with previews, the open
// conversation and a composer, all rendered from engine snapshots.
package chattui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/chattui/styles"
	"github.com/tOgg1/parley/internal/engine"
	"github.com/tOgg1/parley/internal/session"
)

const actionTimeout = 10 * time.Second

// Engine is the part of engine.Engine the UI drives.
type Engine interface {
	Snapshot() engine.View
	Updates() <-chan struct{}
	Select(ctx context.Context, counterpartyID string) error
	Submit(ctx context.Context, text string) error
	SetDraft(ctx context.Context, text string) error
	Reload(ctx context.Context) error
}

// Authenticator signs the user in from the login form.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (chat.Principal, error)
	SignOut(ctx context.Context) error
}

// Config wires a Model.
type Config struct {
	Engine Engine
	Auth   Authenticator
	Theme  string
	// Email prefills the login form.
	Email string
	// OnSignIn runs after a successful sign-in from the form.
	OnSignIn func(email string, principal chat.Principal)
}

type focus int

const (
	focusRoster focus = iota
	focusComposer
)

// Model is the root bubbletea model.
type Model struct {
	engine   Engine
	auth     Authenticator
	onSignIn func(string, chat.Principal)

	theme     styles.Theme
	msgStyles styles.MessageStyles

	view   engine.View
	width  int
	height int
	focus  focus
	cursor int

	thread   viewport.Model
	composer textinput.Model
	// submitted is the composer text of the last submit, cleared once the
	// engine clears the draft.
	submitted string

	login loginForm

	status    string
	statusErr bool
	showHelp  bool
}

type updateMsg struct{}

type actionResultMsg struct {
	action string
	err    error
}

// NewModel builds a Model. The engine must already be running.
func NewModel(cfg Config) (*Model, error) {
	if cfg.Engine == nil {
		return nil, errors.New("chat ui requires an engine")
	}
	if cfg.Theme != "" {
		if _, ok := styles.Themes[cfg.Theme]; !ok {
			return nil, fmt.Errorf("invalid theme %q", cfg.Theme)
		}
	}
	theme := styles.Lookup(cfg.Theme)

	composer := textinput.New()
	composer.Placeholder = "Type a message"
	composer.Prompt = "> "
	composer.CharLimit = chat.MaxTextLength

	m := &Model{
		engine:    cfg.Engine,
		auth:      cfg.Auth,
		onSignIn:  cfg.OnSignIn,
		theme:     theme,
		msgStyles: styles.NewMessageStyles(theme),
		thread:    viewport.New(0, 0),
		composer:  composer,
		login:     newLoginForm(cfg.Email),
	}
	m.applyView(cfg.Engine.Snapshot())
	return m, nil
}

// Run starts the full-screen UI and blocks until it exits.
func Run(ctx context.Context, cfg Config) error {
	model, err := NewModel(cfg)
	if err != nil {
		return err
	}
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.engine.Updates()), textinput.Blink)
}

func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-updates
		return updateMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.layout()
		return m, nil
	case updateMsg:
		m.applyView(m.engine.Snapshot())
		return m, waitForUpdate(m.engine.Updates())
	case actionResultMsg:
		m.handleResult(typed)
		return m, nil
	case signInResultMsg:
		return m, m.handleSignIn(typed)
	case tea.KeyMsg:
		if typed.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.view.Session != session.SignedIn {
			return m, m.updateLogin(typed)
		}
		return m, m.handleKey(typed)
	}

	if m.focus == focusComposer {
		var cmd tea.Cmd
		m.composer, cmd = m.composer.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab":
		m.toggleFocus()
		return nil
	case "ctrl+r":
		return m.run("reload", m.engine.Reload)
	case "pgup":
		m.thread.HalfViewUp()
		return nil
	case "pgdown":
		m.thread.HalfViewDown()
		return nil
	}

	if m.focus == focusComposer {
		return m.handleComposerKey(msg)
	}
	return m.handleRosterKey(msg)
}

func (m *Model) handleRosterKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "?":
		m.showHelp = !m.showHelp
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.view.Roster)-1 {
			m.cursor++
		}
	case "enter", "right", "l":
		if m.cursor < 0 || m.cursor >= len(m.view.Roster) {
			return nil
		}
		id := m.view.Roster[m.cursor].ID
		m.setFocus(focusComposer)
		return m.run("select", func(ctx context.Context) error {
			return m.engine.Select(ctx, id)
		})
	case "ctrl+o":
		if m.auth == nil {
			return nil
		}
		return m.run("sign out", m.auth.SignOut)
	}
	return nil
}

func (m *Model) handleComposerKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.setFocus(focusRoster)
		return nil
	case "enter":
		text := m.composer.Value()
		if strings.TrimSpace(text) == "" {
			return nil
		}
		m.submitted = text
		return m.run("send", func(ctx context.Context) error {
			return m.engine.Submit(ctx, text)
		})
	}

	before := m.composer.Value()
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	after := m.composer.Value()
	if after == before || m.view.Selected == "" {
		return cmd
	}
	return tea.Batch(cmd, m.run("draft", func(ctx context.Context) error {
		return m.engine.SetDraft(ctx, after)
	}))
}

// run executes an engine call off the update loop.
func (m *Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionResultMsg{action: action, err: fn(ctx)}
	}
}

func (m *Model) handleResult(msg actionResultMsg) {
	if msg.err == nil {
		if msg.action != "draft" {
			m.status, m.statusErr = "", false
		}
		return
	}
	if msg.action == "send" {
		m.submitted = ""
	}
	m.status = fmt.Sprintf("%s failed: %s", msg.action, describeError(msg.err))
	m.statusErr = true
}

// applyView adopts a new snapshot and syncs the widgets that mirror it.
func (m *Model) applyView(v engine.View) {
	prev := m.view
	m.view = v

	if v.Selected != prev.Selected {
		m.composer.SetValue(v.Draft)
		m.composer.CursorEnd()
		m.submitted = ""
		if idx := rosterIndex(v.Roster, v.Selected); idx >= 0 {
			m.cursor = idx
		}
	}
	if m.submitted != "" && v.Draft == "" && m.composer.Value() == m.submitted {
		m.composer.Reset()
		m.submitted = ""
	}
	if v.Draft != "" && m.composer.Value() == "" && v.LastError != nil {
		// A failed channel send put the text back.
		m.composer.SetValue(v.Draft)
		m.composer.CursorEnd()
	}
	if m.cursor >= len(v.Roster) {
		m.cursor = len(v.Roster) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if v.Session != session.SignedIn && prev.Session == session.SignedIn {
		m.setFocus(focusRoster)
		m.login.focusFirst()
	}

	atBottom := m.thread.AtBottom() || len(prev.Messages) == 0 || prev.Selected != v.Selected
	m.thread.SetContent(m.renderMessages(m.thread.Width))
	if atBottom {
		m.thread.GotoBottom()
	}
}

func (m *Model) toggleFocus() {
	if m.focus == focusRoster {
		m.setFocus(focusComposer)
		return
	}
	m.setFocus(focusRoster)
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusComposer {
		m.composer.Focus()
		return
	}
	m.composer.Blur()
}

func (m *Model) layout() {
	widths := styles.ComputeColumnWidths(m.width)
	// Borders take two columns and two rows per pane.
	threadWidth := widths.Conversation - 2
	if threadWidth < 0 {
		threadWidth = 0
	}
	threadHeight := m.height - chromeHeight - composerHeight - 4
	if threadHeight < 1 {
		threadHeight = 1
	}
	m.thread.Width = threadWidth
	m.thread.Height = threadHeight
	m.composer.Width = threadWidth - len(m.composer.Prompt) - 1
	m.thread.SetContent(m.renderMessages(threadWidth))
	m.thread.GotoBottom()
}

func rosterIndex(roster []chat.Counterparty, id string) int {
	for i, entry := range roster {
		if entry.ID == id {
			return i
		}
	}
	return -1
}

func describeError(err error) string {
	switch {
	case errors.Is(err, chat.ErrUnauthorized):
		return "please sign in again"
	case errors.Is(err, chat.ErrNetwork):
		return "network error, try again"
	case errors.Is(err, chat.ErrValidation):
		return "message is empty"
	case errors.Is(err, chat.ErrNoSelection):
		return "pick a conversation first"
	default:
		return err.Error()
	}
}
