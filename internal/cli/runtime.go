package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/parley/internal/api"
	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/config"
	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/session"
)

const (
	envEmail         = "PARLEY_EMAIL"
	envPassword      = "PARLEY_PASSWORD"
	envGoogleIDToken = "PARLEY_GOOGLE_ID_TOKEN"
)

// services are the remote collaborators every command signs in against.
type services struct {
	session *session.Manager
	api     *api.Client
}

type registrarFunc func(ctx context.Context, principal chat.Principal) error

func (f registrarFunc) Register(ctx context.Context, principal chat.Principal) error {
	return f(ctx, principal)
}

func (o *options) newServices() (*services, error) {
	if err := o.cfg.RequireAuth(); err != nil {
		return nil, err
	}
	provider, err := session.NewIdentityToolkit(session.IdentityToolkitConfig{
		APIKey:      o.cfg.Auth.APIKey,
		IdentityURL: o.cfg.Auth.IdentityURL,
		TokenURL:    o.cfg.Auth.TokenURL,
		Federated:   o.googleIDToken,
	})
	if err != nil {
		return nil, err
	}

	// The client needs the manager for tokens and the manager registers
	// through the client.
	var client *api.Client
	registrar := registrarFunc(func(ctx context.Context, principal chat.Principal) error {
		return client.Register(ctx, principal)
	})
	manager := session.New(provider,
		session.WithRegistrar(registrar),
		session.WithRefreshSkew(o.cfg.Auth.RefreshSkew),
		session.WithLogger(logging.Component("session")),
	)

	apiLogger := logging.Component("api")
	client, err = api.New(api.Config{
		BaseURL: o.cfg.API.BaseURL,
		Timeout: o.cfg.API.Timeout,
		Tokens:  manager,
		Logger:  &apiLogger,
	})
	if err != nil {
		return nil, err
	}
	return &services{session: manager, api: client}, nil
}

// signIn authenticates with credentials from flags, the environment, the
// remembered account or a prompt, and remembers the account on success.
func (o *options) signIn(cmd *cobra.Command, svc *services, emailFlag string) (chat.Principal, error) {
	email, password, err := o.credentials(cmd, emailFlag)
	if err != nil {
		return chat.Principal{}, err
	}
	principal, err := svc.session.SignIn(cmd.Context(), email, password)
	if err != nil {
		return chat.Principal{}, describeAuthError(err)
	}
	o.remember(email, principal)
	return principal, nil
}

// signInGoogle exchanges a Google ID token for a session.
func (o *options) signInGoogle(cmd *cobra.Command, svc *services) (chat.Principal, error) {
	principal, err := svc.session.SignInFederated(cmd.Context())
	if err != nil {
		return chat.Principal{}, describeAuthError(err)
	}
	o.remember(principal.Email, principal)
	return principal, nil
}

// googleIDToken supplies the ID token for federated sign-in. Obtaining one
// is left to an external OAuth flow, for example `gcloud auth print-identity-token`.
func (o *options) googleIDToken(context.Context) (string, error) {
	token := strings.TrimSpace(o.idToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(envGoogleIDToken))
	}
	if token == "" {
		return "", errors.New("no Google ID token (use --id-token or " + envGoogleIDToken + ")")
	}
	return token, nil
}

func (o *options) remember(email string, principal chat.Principal) {
	logger := logging.Component("cli")
	current, err := o.contexts.Load()
	if err != nil {
		logger.Debug().Err(err).Msg("load context failed")
		current = &config.Context{}
	}
	current.Remember(email, principal.ID, principal.DisplayName)
	if err := o.contexts.Save(current); err != nil {
		logger.Warn().Err(err).Msg("save context failed")
	}
}

// rememberedEmail is the email of the last account used on this machine.
func (o *options) rememberedEmail() string {
	current, err := o.contexts.Load()
	if err != nil || current == nil {
		return ""
	}
	return current.Email
}

func (o *options) credentials(cmd *cobra.Command, emailFlag string) (string, string, error) {
	in := bufio.NewReader(cmd.InOrStdin())

	email := strings.TrimSpace(emailFlag)
	if email == "" {
		email = strings.TrimSpace(os.Getenv(envEmail))
	}
	if email == "" {
		email = o.rememberedEmail()
	}
	if email == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Email: ")
		line, err := readLine(in)
		if err != nil {
			return "", "", fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return "", "", errors.New("email is required (use --email or " + envEmail + ")")
	}

	password := os.Getenv(envPassword)
	if password == "" {
		var err error
		password, err = readPassword(cmd, in)
		if err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}
	}
	if password == "" {
		return "", "", errors.New("password is required (prompted, or set " + envPassword + ")")
	}
	return email, password, nil
}

func readPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	if file, ok := cmd.InOrStdin().(*os.File); ok && isTerminal(file) {
		raw, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	line, err := readLine(in)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func isTerminal(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}

func describeAuthError(err error) error {
	switch {
	case errors.Is(err, chat.ErrInvalidCredentials):
		return fmt.Errorf("sign in: wrong email or password: %w", err)
	case errors.Is(err, chat.ErrProvider):
		return fmt.Errorf("sign in: identity provider unavailable: %w", err)
	default:
		return fmt.Errorf("sign in: %w", err)
	}
}
