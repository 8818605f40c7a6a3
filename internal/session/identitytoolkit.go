package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tOgg1/parley/internal/chat"
)

const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://securetoken.googleapis.com/v1"

	defaultFederatedProviderID = "google.com"
	defaultRequestURI          = "http://localhost"
	defaultProviderTimeout     = 15 * time.Second
)

// FederatedTokenSource obtains an OAuth ID token from a federated identity
// provider (for example through a device-code or browser flow).
type FederatedTokenSource func(ctx context.Context) (idToken string, err error)

// IdentityToolkitConfig configures the REST auth provider.
type IdentityToolkitConfig struct {
	APIKey      string
	IdentityURL string
	TokenURL    string
	HTTPClient  *http.Client

	// Federated is required for SignInFederated.
	Federated  FederatedTokenSource
	ProviderID string
	RequestURI string
}

// IdentityToolkit implements Provider against the Google Identity Toolkit
// REST API.
type IdentityToolkit struct {
	apiKey      string
	identityURL string
	tokenURL    string
	client      *http.Client
	federated   FederatedTokenSource
	providerID  string
	requestURI  string
}

var _ Provider = (*IdentityToolkit)(nil)

// NewIdentityToolkit validates cfg and applies defaults.
func NewIdentityToolkit(cfg IdentityToolkitConfig) (*IdentityToolkit, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("auth api key required")
	}
	p := &IdentityToolkit{
		apiKey:      apiKey,
		identityURL: strings.TrimRight(strings.TrimSpace(cfg.IdentityURL), "/"),
		tokenURL:    strings.TrimRight(strings.TrimSpace(cfg.TokenURL), "/"),
		client:      cfg.HTTPClient,
		federated:   cfg.Federated,
		providerID:  strings.TrimSpace(cfg.ProviderID),
		requestURI:  strings.TrimSpace(cfg.RequestURI),
	}
	if p.identityURL == "" {
		p.identityURL = DefaultIdentityURL
	}
	if p.tokenURL == "" {
		p.tokenURL = DefaultTokenURL
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: defaultProviderTimeout}
	}
	if p.providerID == "" {
		p.providerID = defaultFederatedProviderID
	}
	if p.requestURI == "" {
		p.requestURI = defaultRequestURI
	}
	return p, nil
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type idpRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
	ReturnIdpCredential bool   `json:"returnIdpCredential"`
}

type accountResponse struct {
	LocalID        string `json:"localId"`
	Email          string `json:"email"`
	DisplayName    string `json:"displayName"`
	PhotoURL       string `json:"photoUrl"`
	ProfilePicture string `json:"profilePicture"`
	IDToken        string `json:"idToken"`
	RefreshToken   string `json:"refreshToken"`
	ExpiresIn      string `json:"expiresIn"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type toolkitError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn implements Provider.
func (p *IdentityToolkit) SignIn(ctx context.Context, email, password string) (Identity, error) {
	return p.account(ctx, "accounts:signInWithPassword", passwordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
}

// SignUp implements Provider.
func (p *IdentityToolkit) SignUp(ctx context.Context, email, password string) (Identity, error) {
	return p.account(ctx, "accounts:signUp", passwordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
}

// SignInFederated implements Provider.
func (p *IdentityToolkit) SignInFederated(ctx context.Context) (Identity, error) {
	if p.federated == nil {
		return Identity{}, fmt.Errorf("%w: federated sign-in not configured", chat.ErrProvider)
	}
	idToken, err := p.federated(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: federated token: %w", chat.ErrProvider, err)
	}
	form := url.Values{}
	form.Set("id_token", idToken)
	form.Set("providerId", p.providerID)
	return p.account(ctx, "accounts:signInWithIdp", idpRequest{
		PostBody:            form.Encode(),
		RequestURI:          p.requestURI,
		ReturnSecureToken:   true,
		ReturnIdpCredential: true,
	})
}

// Refresh implements Provider.
func (p *IdentityToolkit) Refresh(ctx context.Context, cred chat.Credential) (chat.Credential, error) {
	if cred.RefreshToken == "" {
		return chat.Credential{}, fmt.Errorf("%w: no refresh token", chat.ErrInvalidCredentials)
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)

	endpoint := p.tokenURL + "/token?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return chat.Credential{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out refreshResponse
	if err := p.do(req, &out); err != nil {
		return chat.Credential{}, err
	}
	return chat.Credential{
		Token:        out.IDToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    expiresAt(out.ExpiresIn, out.IDToken),
	}, nil
}

// SignOut implements Provider. Identity Toolkit tokens are revoked by letting
// them expire, so there is nothing to call.
func (p *IdentityToolkit) SignOut(context.Context, chat.Credential) error {
	return nil
}

func (p *IdentityToolkit) account(ctx context.Context, method string, payload any) (Identity, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Identity{}, err
	}
	endpoint := p.identityURL + "/" + method + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out accountResponse
	if err := p.do(req, &out); err != nil {
		if errors.Is(err, chat.ErrNetwork) {
			return Identity{}, fmt.Errorf("%w: %w", chat.ErrProvider, err)
		}
		return Identity{}, err
	}

	avatar := out.PhotoURL
	if avatar == "" {
		avatar = out.ProfilePicture
	}
	return Identity{
		Principal: chat.Principal{
			ID:          out.LocalID,
			DisplayName: out.DisplayName,
			Email:       out.Email,
			AvatarURL:   avatar,
		},
		Credential: chat.Credential{
			Token:        out.IDToken,
			RefreshToken: out.RefreshToken,
			ExpiresAt:    expiresAt(out.ExpiresIn, out.IDToken),
		},
	}, nil
}

func (p *IdentityToolkit) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", chat.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", chat.ErrNetwork, err)
	}
	if resp.StatusCode >= 300 {
		return classifyToolkitError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", chat.ErrProvider, err)
	}
	return nil
}

var credentialErrors = map[string]bool{
	"EMAIL_NOT_FOUND":           true,
	"INVALID_PASSWORD":          true,
	"INVALID_LOGIN_CREDENTIALS": true,
	"INVALID_EMAIL":             true,
	"USER_DISABLED":             true,
	"EMAIL_EXISTS":              true,
	"WEAK_PASSWORD":             true,
	"TOKEN_EXPIRED":             true,
	"USER_NOT_FOUND":            true,
	"INVALID_REFRESH_TOKEN":     true,
	"INVALID_ID_TOKEN":          true,
	"INVALID_IDP_RESPONSE":      true,
}

func classifyToolkitError(status int, body []byte) error {
	var payload toolkitError
	_ = json.Unmarshal(body, &payload)
	code := strings.TrimSpace(payload.Error.Message)
	// Messages look like "WEAK_PASSWORD : Password should be at least 6 characters".
	if idx := strings.Index(code, " "); idx > 0 {
		code = code[:idx]
	}
	if code == "" {
		code = http.StatusText(status)
	}
	if credentialErrors[code] {
		return fmt.Errorf("%w: %s", chat.ErrInvalidCredentials, code)
	}
	if status >= 500 {
		return fmt.Errorf("%w: %s (status %d)", chat.ErrNetwork, code, status)
	}
	return fmt.Errorf("%w: %s (status %d)", chat.ErrProvider, code, status)
}

func expiresAt(expiresIn, token string) time.Time {
	if secs, err := strconv.Atoi(strings.TrimSpace(expiresIn)); err == nil && secs > 0 {
		return time.Now().Add(time.Duration(secs) * time.Second)
	}
	return ExpiryFromToken(token)
}
