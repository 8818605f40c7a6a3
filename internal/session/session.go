// Package session tracks the authenticated principal and its bearer
// credential.
//
// A Manager moves between SignedOut, Authenticating and SignedIn. While
// SignedIn the credential may be rotated without a state change, so
// dependents must call Token for every request instead of holding on to a
// token. Every sign-in and sign-out bumps the epoch; asynchronous work tagged
// with an older epoch is stale and its result must be dropped.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/logging"
)

// State is the authentication state.
type State int

const (
	SignedOut State = iota
	Authenticating
	SignedIn
)

func (s State) String() string {
	switch s {
	case SignedOut:
		return "signed-out"
	case Authenticating:
		return "authenticating"
	case SignedIn:
		return "signed-in"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrBusy rejects a sign-in attempt while another one is running.
var ErrBusy = errors.New("sign-in already in progress")

const (
	defaultRefreshSkew     = 60 * time.Second
	defaultRegisterTimeout = 10 * time.Second
	changeBuffer           = 8
)

// Change is broadcast on every state transition.
type Change struct {
	State     State
	Principal chat.Principal
	Epoch     uint64
	Err       error
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistrar fires Register once per principal after its first sign-in.
func WithRegistrar(r Registrar) Option {
	return func(m *Manager) { m.registrar = r }
}

// WithRefreshSkew refreshes a credential this long before it expires.
func WithRefreshSkew(skew time.Duration) Option {
	return func(m *Manager) {
		if skew > 0 {
			m.refreshSkew = skew
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager is the session context. The zero value is not usable; call New.
type Manager struct {
	provider    Provider
	registrar   Registrar
	refreshSkew time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	mu         sync.Mutex
	state      State
	principal  chat.Principal
	credential chat.Credential
	epoch      uint64
	subs       map[int]chan Change
	nextSub    int
	registered map[string]bool
	registerWG sync.WaitGroup

	refreshMu sync.Mutex
}

// New creates a signed-out Manager.
func New(provider Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:    provider,
		refreshSkew: defaultRefreshSkew,
		now:         time.Now,
		logger:      logging.Component("session"),
		subs:        make(map[int]chan Change),
		registered:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Principal returns the signed-in principal.
func (m *Manager) Principal() (chat.Principal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.principal, m.state == SignedIn
}

// Epoch identifies the current session; it changes on sign-in and sign-out.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Subscribe returns a channel of state changes. Slow subscribers miss
// intermediate changes rather than blocking the manager; the current state is
// delivered first.
func (m *Manager) Subscribe() (<-chan Change, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Change, changeBuffer)
	ch <- Change{State: m.state, Principal: m.principal, Epoch: m.epoch}
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(sub)
			}
		})
	}
}

// SignIn authenticates with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) (chat.Principal, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return chat.Principal{}, fmt.Errorf("%w: email and password required", chat.ErrValidation)
	}
	return m.authenticate(ctx, "password", func(ctx context.Context) (Identity, error) {
		return m.provider.SignIn(ctx, email, password)
	})
}

// SignUp creates an account and signs in.
func (m *Manager) SignUp(ctx context.Context, email, password string) (chat.Principal, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return chat.Principal{}, fmt.Errorf("%w: email and password required", chat.ErrValidation)
	}
	return m.authenticate(ctx, "signup", func(ctx context.Context) (Identity, error) {
		return m.provider.SignUp(ctx, email, password)
	})
}

// SignInFederated signs in through the provider's federated flow.
func (m *Manager) SignInFederated(ctx context.Context) (chat.Principal, error) {
	return m.authenticate(ctx, "federated", m.provider.SignInFederated)
}

func (m *Manager) authenticate(ctx context.Context, method string, fn func(context.Context) (Identity, error)) (chat.Principal, error) {
	m.mu.Lock()
	if m.state == Authenticating {
		m.mu.Unlock()
		return chat.Principal{}, ErrBusy
	}
	m.state = Authenticating
	m.broadcastLocked(nil)
	m.mu.Unlock()

	identity, err := fn(ctx)
	if err == nil && strings.TrimSpace(identity.Principal.ID) == "" {
		err = fmt.Errorf("%w: provider returned no user id", chat.ErrProvider)
	}

	m.mu.Lock()
	if err != nil {
		m.state = SignedOut
		m.principal = chat.Principal{}
		m.credential = chat.Credential{}
		m.broadcastLocked(err)
		m.mu.Unlock()
		m.logger.Warn().Str("method", method).Err(err).Msg("sign-in failed")
		return chat.Principal{}, err
	}

	cred := identity.Credential
	if cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = ExpiryFromToken(cred.Token)
	}
	m.state = SignedIn
	m.principal = identity.Principal
	m.credential = cred
	m.epoch++
	m.broadcastLocked(nil)
	firstSignIn := !m.registered[identity.Principal.ID]
	m.registered[identity.Principal.ID] = true
	m.mu.Unlock()

	m.logger.Info().
		Str("method", method).
		Str("principal_id", identity.Principal.ID).
		Msg("signed in")

	if firstSignIn && m.registrar != nil {
		m.register(identity.Principal)
	}
	return identity.Principal, nil
}

// register is fire-and-forget; failures are logged only.
func (m *Manager) register(principal chat.Principal) {
	m.registerWG.Add(1)
	go func() {
		defer m.registerWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), defaultRegisterTimeout)
		defer cancel()
		if err := m.registrar.Register(ctx, principal); err != nil {
			m.logger.Warn().Err(err).Str("principal_id", principal.ID).Msg("register user failed")
		}
	}()
}

// WaitRegistered blocks until background registration calls finish.
func (m *Manager) WaitRegistered() {
	m.registerWG.Wait()
}

// SignOut discards the credential. Dependents see the SignedOut change and
// treat it as cancellation.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	if m.state == SignedOut {
		m.mu.Unlock()
		return nil
	}
	cred := m.credential
	m.clearLocked(nil)
	m.mu.Unlock()

	m.logger.Info().Msg("signed out")
	if cred.Token == "" {
		return nil
	}
	return m.provider.SignOut(ctx, cred)
}

func (m *Manager) clearLocked(cause error) {
	m.state = SignedOut
	m.principal = chat.Principal{}
	m.credential = chat.Credential{}
	m.epoch++
	m.broadcastLocked(cause)
}

// Token returns the current bearer token, refreshing it first when it is
// about to expire.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.state != SignedIn {
		m.mu.Unlock()
		return "", chat.ErrUnauthorized
	}
	cred := m.credential
	needsRefresh := cred.ExpiresWithin(m.now(), m.refreshSkew)
	m.mu.Unlock()

	if !needsRefresh {
		return cred.Token, nil
	}
	return m.refresh(ctx)
}

// Invalidate forces the next Token call to refresh. Callers use it after
// the server rejected the current token.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == SignedIn {
		m.credential.ExpiresAt = m.now()
	}
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.Lock()
	if m.state != SignedIn {
		m.mu.Unlock()
		return "", chat.ErrUnauthorized
	}
	cred := m.credential
	epoch := m.epoch
	if !cred.ExpiresWithin(m.now(), m.refreshSkew) {
		// Another caller refreshed while we waited.
		m.mu.Unlock()
		return cred.Token, nil
	}
	m.mu.Unlock()

	next, err := m.provider.Refresh(ctx, cred)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.state != SignedIn {
		return "", chat.ErrUnauthorized
	}
	if err != nil {
		if errors.Is(err, chat.ErrNetwork) {
			return "", err
		}
		m.logger.Warn().Err(err).Msg("credential refresh rejected; signing out")
		m.clearLocked(fmt.Errorf("%w: %w", chat.ErrUnauthorized, err))
		return "", fmt.Errorf("%w: %w", chat.ErrUnauthorized, err)
	}
	if next.ExpiresAt.IsZero() {
		next.ExpiresAt = ExpiryFromToken(next.Token)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	m.credential = next
	m.logger.Debug().Str("token", logging.RedactToken(next.Token)).Msg("credential rotated")
	return next.Token, nil
}

func (m *Manager) broadcastLocked(err error) {
	change := Change{State: m.state, Principal: m.principal, Epoch: m.epoch, Err: err}
	for _, ch := range m.subs {
		select {
		case ch <- change:
		default:
			// Drop the oldest pending change so the newest always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}
