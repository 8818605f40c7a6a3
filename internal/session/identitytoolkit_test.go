package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/testutil"
)

func newToolkitServer(t *testing.T, handler http.HandlerFunc) *IdentityToolkit {
	t.Helper()
	testutil.SkipIfNoNetwork(t)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewIdentityToolkit(IdentityToolkitConfig{
		APIKey:      "test-key",
		IdentityURL: srv.URL + "/v1",
		TokenURL:    srv.URL + "/token-v1",
		Federated: func(context.Context) (string, error) {
			return "google-id-token", nil
		},
	})
	require.NoError(t, err)
	return p
}

func TestNewIdentityToolkitRequiresKey(t *testing.T) {
	_, err := NewIdentityToolkit(IdentityToolkitConfig{})
	require.Error(t, err)
}

func TestIdentityToolkitSignIn(t *testing.T) {
	p := newToolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/accounts:signInWithPassword", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		var req passwordRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "u1@example.com", req.Email)
		require.True(t, req.ReturnSecureToken)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"localId":      "u1",
			"email":        "u1@example.com",
			"displayName":  "User One",
			"idToken":      "id-token",
			"refreshToken": "refresh-token",
			"expiresIn":    "3600",
		})
	})

	id, err := p.SignIn(context.Background(), "u1@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "u1", id.Principal.ID)
	require.Equal(t, "User One", id.Principal.DisplayName)
	require.Equal(t, "id-token", id.Credential.Token)
	require.Equal(t, "refresh-token", id.Credential.RefreshToken)
	require.WithinDuration(t, time.Now().Add(time.Hour), id.Credential.ExpiresAt, 5*time.Second)
}

func TestIdentityToolkitErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    error
	}{
		{name: "bad password", status: 400, message: "INVALID_PASSWORD", want: chat.ErrInvalidCredentials},
		{name: "weak password", status: 400, message: "WEAK_PASSWORD : Password should be at least 6 characters", want: chat.ErrInvalidCredentials},
		{name: "quota", status: 400, message: "QUOTA_EXCEEDED", want: chat.ErrProvider},
		{name: "server down", status: 503, message: "", want: chat.ErrProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newToolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": tt.status, "message": tt.message},
				})
			})
			_, err := p.SignUp(context.Background(), "u1@example.com", "pw")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIdentityToolkitFederated(t *testing.T) {
	p := newToolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/accounts:signInWithIdp", r.URL.Path)
		var req idpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		form, err := url.ParseQuery(req.PostBody)
		require.NoError(t, err)
		require.Equal(t, "google-id-token", form.Get("id_token"))
		require.Equal(t, "google.com", form.Get("providerId"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"localId":  "u7",
			"email":    "u7@example.com",
			"photoUrl": "https://example.com/u7.png",
			"idToken":  "id-7",
		})
	})

	id, err := p.SignInFederated(context.Background())
	require.NoError(t, err)
	require.Equal(t, "u7", id.Principal.ID)
	require.Equal(t, "https://example.com/u7.png", id.Principal.AvatarURL)
}

func TestIdentityToolkitFederatedNotConfigured(t *testing.T) {
	p, err := NewIdentityToolkit(IdentityToolkitConfig{APIKey: "k"})
	require.NoError(t, err)
	_, err = p.SignInFederated(context.Background())
	require.ErrorIs(t, err, chat.ErrProvider)
}

func TestIdentityToolkitRefresh(t *testing.T) {
	p := newToolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token-v1/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id_token":      "id-2",
			"refresh_token": "refresh-2",
			"expires_in":    "3600",
			"user_id":       "u1",
		})
	})

	cred, err := p.Refresh(context.Background(), chat.Credential{Token: "id-1", RefreshToken: "refresh-1"})
	require.NoError(t, err)
	require.Equal(t, "id-2", cred.Token)
	require.Equal(t, "refresh-2", cred.RefreshToken)

	_, err = p.Refresh(context.Background(), chat.Credential{Token: "id-1"})
	require.ErrorIs(t, err, chat.ErrInvalidCredentials)
}

func TestIdentityToolkitRefreshTransportFailure(t *testing.T) {
	testutil.SkipIfNoNetwork(t)
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	p, err := NewIdentityToolkit(IdentityToolkitConfig{APIKey: "k", TokenURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Refresh(context.Background(), chat.Credential{RefreshToken: "r"})
	require.ErrorIs(t, err, chat.ErrNetwork)
}
