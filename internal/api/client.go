// Package api is the request/response transport to the messaging service:
// roster, per-conversation history, the HTTP send fallback and user
// registration. Every request is authorized with the token the TokenSource
// holds at the moment the request is built.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/logging"
)

const (
	DefaultBaseURL = "http://localhost:4000"
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 8 << 20
)

// TokenSource yields the current bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Invalidator is implemented by token sources that can be told the server
// rejected their token.
type Invalidator interface {
	Invalidate()
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Tokens     TokenSource
	Logger     *zerolog.Logger
}

// Client talks to the messaging service over HTTP.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	tokens  TokenSource
	logger  zerolog.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https: %q", raw)
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token source required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := logging.Component("api")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		timeout: timeout,
		tokens:  cfg.Tokens,
		logger:  logger,
	}, nil
}

// LoadRoster fetches every counterparty known to the service. The principal
// may be included; use FilterRoster before display.
func (c *Client) LoadRoster(ctx context.Context) ([]chat.Counterparty, error) {
	var roster []chat.Counterparty
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &roster); err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	return roster, nil
}

// LoadHistory fetches the conversation with counterpartyID ordered by id.
// An empty slice is a valid result; conversations are created implicitly.
func (c *Client) LoadHistory(ctx context.Context, counterpartyID string) ([]chat.Message, error) {
	id, err := chat.NormalizeParticipantID(counterpartyID)
	if err != nil {
		return nil, err
	}
	var history []chat.Message
	if err := c.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(id)+"/messages", nil, &history); err != nil {
		return nil, fmt.Errorf("load history %s: %w", id, err)
	}
	sort.SliceStable(history, func(i, j int) bool { return history[i].ID < history[j].ID })
	for i := range history {
		if history[i].ConversationID == "" && history[i].From != "" && history[i].To != "" {
			history[i].ConversationID, _ = chat.ResolveConversationID(history[i].From, history[i].To)
		}
	}
	if history == nil {
		history = []chat.Message{}
	}
	return history, nil
}

type postMessageBody struct {
	Text string `json:"text"`
}

// PostMessage sends text to counterpartyID over request/response.
func (c *Client) PostMessage(ctx context.Context, counterpartyID, text string) error {
	id, err := chat.NormalizeParticipantID(counterpartyID)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(id)+"/messages", postMessageBody{Text: text}, nil); err != nil {
		return fmt.Errorf("send message to %s: %w", id, err)
	}
	return nil
}

// Register upserts the principal's profile with the service.
func (c *Client) Register(ctx context.Context, principal chat.Principal) error {
	if err := c.do(ctx, http.MethodPost, "/api/users/register", principal, nil); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL.String() + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", chat.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", chat.ErrNetwork, err)
	}

	if err := c.statusError(resp.StatusCode, data); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", chat.ErrNetwork, err)
	}
	return nil
}

func (c *Client) statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	detail = logging.Redact(detail)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		if inv, ok := c.tokens.(Invalidator); ok {
			inv.Invalidate()
		}
		return fmt.Errorf("%w: status %d", chat.ErrUnauthorized, status)
	case http.StatusNotFound:
		return fmt.Errorf("%w: status %d", chat.ErrNotFound, status)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: status %d: %s", chat.ErrValidation, status, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", chat.ErrNetwork, status, detail)
	}
}

// FilterRoster drops selfID from roster for display.
func FilterRoster(roster []chat.Counterparty, selfID string) []chat.Counterparty {
	out := make([]chat.Counterparty, 0, len(roster))
	for _, entry := range roster {
		if entry.ID == "" || entry.ID == selfID {
			continue
		}
		out = append(out, entry)
	}
	return out
}
