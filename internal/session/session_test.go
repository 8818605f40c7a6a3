package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/parley/internal/chat"
)

type fakeProvider struct {
	mu         sync.Mutex
	identity   Identity
	signInErr  error
	refreshed  chat.Credential
	refreshErr error
	refreshes  int
	block      chan struct{}
	signOuts   int
}

func (f *fakeProvider) SignIn(ctx context.Context, email, password string) (Identity, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Identity{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return Identity{}, f.signInErr
	}
	return f.identity, nil
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password string) (Identity, error) {
	return f.SignIn(ctx, email, password)
}

func (f *fakeProvider) SignInFederated(ctx context.Context) (Identity, error) {
	return f.SignIn(ctx, "", "")
}

func (f *fakeProvider) Refresh(ctx context.Context, cred chat.Credential) (chat.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return chat.Credential{}, f.refreshErr
	}
	return f.refreshed, nil
}

func (f *fakeProvider) SignOut(context.Context, chat.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return nil
}

type countingRegistrar struct {
	calls atomic.Int32
	last  atomic.Value
}

func (r *countingRegistrar) Register(_ context.Context, p chat.Principal) error {
	r.calls.Add(1)
	r.last.Store(p.ID)
	return nil
}

func testToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func identity(token string) Identity {
	return Identity{
		Principal:  chat.Principal{ID: "u1", DisplayName: "User One", Email: "u1@example.com"},
		Credential: chat.Credential{Token: token, RefreshToken: "refresh-1"},
	}
}

func drain(ch <-chan Change) []Change {
	var out []Change
	for {
		select {
		case c := <-ch:
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestSignInTransitions(t *testing.T) {
	token := testToken(t, "u1", time.Now().Add(time.Hour))
	provider := &fakeProvider{identity: identity(token)}
	mgr := New(provider, WithLogger(zerolog.Nop()))

	changes, unsubscribe := mgr.Subscribe()
	defer unsubscribe()

	principal, err := mgr.SignIn(context.Background(), "u1@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "u1", principal.ID)
	require.Equal(t, SignedIn, mgr.State())
	require.Equal(t, uint64(1), mgr.Epoch())

	got := drain(changes)
	require.Len(t, got, 3)
	require.Equal(t, SignedOut, got[0].State)
	require.Equal(t, Authenticating, got[1].State)
	require.Equal(t, SignedIn, got[2].State)
	require.Equal(t, "u1", got[2].Principal.ID)

	tok, err := mgr.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, token, tok)
}

func TestSignInFailureReturnsToSignedOut(t *testing.T) {
	provider := &fakeProvider{signInErr: fmt.Errorf("%w: INVALID_PASSWORD", chat.ErrInvalidCredentials)}
	mgr := New(provider, WithLogger(zerolog.Nop()))
	changes, unsubscribe := mgr.Subscribe()
	defer unsubscribe()

	_, err := mgr.SignIn(context.Background(), "u1@example.com", "bad")
	require.ErrorIs(t, err, chat.ErrInvalidCredentials)
	require.Equal(t, SignedOut, mgr.State())

	got := drain(changes)
	require.Equal(t, SignedOut, got[len(got)-1].State)
	require.ErrorIs(t, got[len(got)-1].Err, chat.ErrInvalidCredentials)

	_, err = mgr.Token(context.Background())
	require.ErrorIs(t, err, chat.ErrUnauthorized)
}

func TestSignInValidatesInput(t *testing.T) {
	mgr := New(&fakeProvider{}, WithLogger(zerolog.Nop()))
	_, err := mgr.SignIn(context.Background(), " ", "pw")
	require.ErrorIs(t, err, chat.ErrValidation)
	require.Equal(t, SignedOut, mgr.State())
}

func TestSignInRejectsConcurrentAttempt(t *testing.T) {
	provider := &fakeProvider{identity: identity("tok"), block: make(chan struct{})}
	mgr := New(provider, WithLogger(zerolog.Nop()))

	done := make(chan error, 1)
	go func() {
		_, err := mgr.SignIn(context.Background(), "a@b", "pw")
		done <- err
	}()
	require.Eventually(t, func() bool { return mgr.State() == Authenticating }, time.Second, 5*time.Millisecond)

	_, err := mgr.SignIn(context.Background(), "a@b", "pw")
	require.ErrorIs(t, err, ErrBusy)

	close(provider.block)
	require.NoError(t, <-done)
	require.Equal(t, SignedIn, mgr.State())
}

func TestTokenRefreshesNearExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	provider := &fakeProvider{
		identity:  identity(testToken(t, "u1", now.Add(30*time.Second))),
		refreshed: chat.Credential{Token: "rotated", ExpiresAt: now.Add(time.Hour)},
	}
	mgr := New(provider, WithClock(clock), WithRefreshSkew(time.Minute), WithLogger(zerolog.Nop()))
	_, err := mgr.SignIn(context.Background(), "a@b", "pw")
	require.NoError(t, err)
	epoch := mgr.Epoch()

	tok, err := mgr.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "rotated", tok)
	require.Equal(t, 1, provider.refreshes)
	require.Equal(t, epoch, mgr.Epoch(), "rotation is not a state transition")

	tok, err = mgr.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "rotated", tok)
	require.Equal(t, 1, provider.refreshes)
}

func TestInvalidateForcesRefresh(t *testing.T) {
	provider := &fakeProvider{
		identity:  identity(testToken(t, "u1", time.Now().Add(time.Hour))),
		refreshed: chat.Credential{Token: "fresh", ExpiresAt: time.Now().Add(time.Hour)},
	}
	mgr := New(provider, WithLogger(zerolog.Nop()))
	_, err := mgr.SignIn(context.Background(), "a@b", "pw")
	require.NoError(t, err)

	mgr.Invalidate()
	tok, err := mgr.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh", tok)
}

func TestRefreshRejectedSignsOut(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		identity:   identity(testToken(t, "u1", now.Add(-time.Minute))),
		refreshErr: fmt.Errorf("%w: TOKEN_EXPIRED", chat.ErrInvalidCredentials),
	}
	mgr := New(provider, WithLogger(zerolog.Nop()))
	_, err := mgr.SignIn(context.Background(), "a@b", "pw")
	require.NoError(t, err)

	_, err = mgr.Token(context.Background())
	require.ErrorIs(t, err, chat.ErrUnauthorized)
	require.Equal(t, SignedOut, mgr.State())
}

func TestRefreshNetworkErrorKeepsSession(t *testing.T) {
	provider := &fakeProvider{
		identity:   identity(testToken(t, "u1", time.Now().Add(-time.Minute))),
		refreshErr: fmt.Errorf("%w: timeout", chat.ErrNetwork),
	}
	mgr := New(provider, WithLogger(zerolog.Nop()))
	_, err := mgr.SignIn(context.Background(), "a@b", "pw")
	require.NoError(t, err)

	_, err = mgr.Token(context.Background())
	require.ErrorIs(t, err, chat.ErrNetwork)
	require.Equal(t, SignedIn, mgr.State())
}

func TestSignOutBumpsEpoch(t *testing.T) {
	provider := &fakeProvider{identity: identity("tok")}
	mgr := New(provider, WithLogger(zerolog.Nop()))
	_, err := mgr.SignIn(context.Background(), "a@b", "pw")
	require.NoError(t, err)
	before := mgr.Epoch()

	require.NoError(t, mgr.SignOut(context.Background()))
	require.Equal(t, SignedOut, mgr.State())
	require.Greater(t, mgr.Epoch(), before)
	require.Equal(t, 1, provider.signOuts)

	_, ok := mgr.Principal()
	require.False(t, ok)
	require.NoError(t, mgr.SignOut(context.Background()))
	require.Equal(t, 1, provider.signOuts)
}

func TestRegistrarCalledOncePerPrincipal(t *testing.T) {
	registrar := &countingRegistrar{}
	mgr := New(&fakeProvider{identity: identity("tok")}, WithRegistrar(registrar), WithLogger(zerolog.Nop()))

	for i := 0; i < 3; i++ {
		_, err := mgr.SignIn(context.Background(), "a@b", "pw")
		require.NoError(t, err)
		require.NoError(t, mgr.SignOut(context.Background()))
	}
	mgr.WaitRegistered()
	require.Equal(t, int32(1), registrar.calls.Load())
	require.Equal(t, "u1", registrar.last.Load())
}

func TestProviderWithoutUserIDFails(t *testing.T) {
	mgr := New(&fakeProvider{identity: Identity{Credential: chat.Credential{Token: "x"}}}, WithLogger(zerolog.Nop()))
	_, err := mgr.SignIn(context.Background(), "a@b", "pw")
	require.ErrorIs(t, err, chat.ErrProvider)
	require.Equal(t, SignedOut, mgr.State())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	mgr := New(&fakeProvider{}, WithLogger(zerolog.Nop()))
	ch, unsubscribe := mgr.Subscribe()
	<-ch
	unsubscribe()
	unsubscribe()
	_, ok := <-ch
	require.False(t, ok)
}

func TestExpiryFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := testToken(t, "u1", exp)
	require.True(t, ExpiryFromToken(token).Equal(exp))
	require.Equal(t, "u1", SubjectFromToken(token))

	require.True(t, ExpiryFromToken("opaque").IsZero())
	require.Equal(t, "", SubjectFromToken("opaque"))
}

func TestStateString(t *testing.T) {
	require.Equal(t, "signed-in", SignedIn.String())
	require.Equal(t, "state(9)", State(9).String())
}
