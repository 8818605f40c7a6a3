package chattui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/parley/internal/chat"
)

// FederatedAuthenticator signs in through an external identity provider.
// The login form offers it when the Authenticator implements it.
type FederatedAuthenticator interface {
	SignInFederated(ctx context.Context) (chat.Principal, error)
}

type loginForm struct {
	email    textinput.Model
	password textinput.Model
	active   int
	busy     bool
	err      string
}

type signInResultMsg struct {
	email     string
	principal chat.Principal
	err       error
}

func newLoginForm(email string) loginForm {
	emailInput := textinput.New()
	emailInput.Placeholder = "email"
	emailInput.Prompt = "Email:    "
	emailInput.SetValue(email)

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	f := loginForm{email: emailInput, password: password}
	if strings.TrimSpace(email) != "" {
		f.active = 1
	}
	f.syncFocus()
	return f
}

func (f *loginForm) focusFirst() {
	f.password.Reset()
	f.active = 0
	if strings.TrimSpace(f.email.Value()) != "" {
		f.active = 1
	}
	f.syncFocus()
}

func (f *loginForm) syncFocus() {
	if f.active == 0 {
		f.email.Focus()
		f.password.Blur()
		return
	}
	f.email.Blur()
	f.password.Focus()
}

func (m *Model) updateLogin(msg tea.KeyMsg) tea.Cmd {
	f := &m.login
	if f.busy {
		return nil
	}
	switch msg.String() {
	case "esc":
		return tea.Quit
	case "tab", "shift+tab", "up", "down":
		f.active = 1 - f.active
		f.syncFocus()
		return nil
	case "ctrl+g":
		return m.submitFederated()
	case "enter":
		if f.active == 0 {
			f.active = 1
			f.syncFocus()
			return nil
		}
		return m.submitLogin()
	}

	var cmd tea.Cmd
	if f.active == 0 {
		f.email, cmd = f.email.Update(msg)
	} else {
		f.password, cmd = f.password.Update(msg)
	}
	return cmd
}

func (m *Model) submitLogin() tea.Cmd {
	f := &m.login
	email := strings.TrimSpace(f.email.Value())
	password := f.password.Value()
	if email == "" || password == "" {
		f.err = "email and password are required"
		return nil
	}
	if m.auth == nil {
		f.err = "sign-in is not available; run `parley login`"
		return nil
	}
	f.busy = true
	f.err = ""
	auth := m.auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		principal, err := auth.SignIn(ctx, email, password)
		return signInResultMsg{email: email, principal: principal, err: err}
	}
}

func (m *Model) federated() (FederatedAuthenticator, bool) {
	if m.auth == nil {
		return nil, false
	}
	fed, ok := m.auth.(FederatedAuthenticator)
	return fed, ok
}

func (m *Model) submitFederated() tea.Cmd {
	f := &m.login
	fed, ok := m.federated()
	if !ok {
		f.err = "Google sign-in is not available"
		return nil
	}
	f.busy = true
	f.err = ""
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		principal, err := fed.SignInFederated(ctx)
		return signInResultMsg{email: principal.Email, principal: principal, err: err}
	}
}

func (m *Model) handleSignIn(msg signInResultMsg) tea.Cmd {
	f := &m.login
	f.busy = false
	f.password.Reset()
	if msg.err != nil {
		f.err = describeSignInError(msg.err)
		f.active = 1
		f.syncFocus()
		return nil
	}
	f.err = ""
	if msg.email != "" {
		f.email.SetValue(msg.email)
	}
	if m.onSignIn != nil {
		m.onSignIn(msg.email, msg.principal)
	}
	m.setFocus(focusRoster)
	return nil
}

func describeSignInError(err error) string {
	switch {
	case errors.Is(err, chat.ErrInvalidCredentials):
		return "wrong email or password"
	case errors.Is(err, chat.ErrNetwork):
		return "cannot reach the sign-in service"
	default:
		return err.Error()
	}
}
