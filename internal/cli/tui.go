package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/chattui"
	"github.com/tOgg1/parley/internal/engine"
	"github.com/tOgg1/parley/internal/live"
	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/state"
)

func newTUICmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tui",
		Aliases: []string{"ui"},
		Short:   "Launch the chat UI",
		Long: "Launch the full-screen chat UI. With " + envPassword + " set and a\n" +
			"remembered account the UI signs in on start; otherwise it shows a login form.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !hasTTY() {
				return errors.New("the chat UI requires an interactive terminal; use roster, history or send instead")
			}
			return opts.runTUI(cmd.Context())
		},
	}
	return cmd
}

func (o *options) runTUI(parent context.Context) error {
	if err := o.cfg.EnsureDirectories(); err != nil {
		return err
	}
	closeLog, err := o.initFileLogging()
	if err != nil {
		return err
	}
	defer closeLog()
	logger := logging.Component("cli")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := o.newServices()
	if err != nil {
		return err
	}

	channelLogger := logging.Component("live")
	channel, err := live.NewManager(live.Config{
		URL:            o.cfg.Live.URL,
		DialTimeout:    o.cfg.Live.DialTimeout,
		InitialBackoff: o.cfg.Live.InitialBackoff,
		MaxBackoff:     o.cfg.Live.MaxBackoff,
		Logger:         &channelLogger,
	})
	if err != nil {
		return err
	}

	var drafts engine.Drafts
	store, err := state.Open(ctx, o.cfg.State.Path)
	if err != nil {
		// Drafts are a convenience; the UI works without them.
		logger.Warn().Err(err).Str("path", o.cfg.State.Path).Msg("local state unavailable")
	} else {
		defer store.Close()
		drafts = store
	}

	eng, err := engine.New(engine.Config{
		Session:            svc.session,
		API:                svc.api,
		Channel:            channel,
		Drafts:             drafts,
		LocalEcho:          o.cfg.Engine.LocalEcho,
		PreviewConcurrency: o.cfg.Engine.PreviewConcurrency,
	})
	if err != nil {
		return err
	}

	email := o.rememberedEmail()
	group, gctx := errgroup.WithContext(ctx)
	uiCtx, cancelUI := context.WithCancel(gctx)
	group.Go(func() error {
		defer cancelUI()
		return eng.Run(gctx)
	})
	group.Go(func() error {
		defer cancelUI()
		if password := os.Getenv(envPassword); password != "" && email != "" {
			if principal, err := svc.session.SignIn(uiCtx, email, password); err != nil {
				logger.Warn().Err(err).Msg("automatic sign-in failed")
			} else {
				o.remember(email, principal)
			}
		}
		err := chattui.Run(uiCtx, chattui.Config{
			Engine: eng,
			Auth:   svc.session,
			Theme:  o.cfg.TUI.Theme,
			Email:  email,
			OnSignIn: func(email string, principal chat.Principal) {
				o.remember(email, principal)
			},
		})
		stop()
		return err
	})

	err = group.Wait()
	if signOutErr := svc.session.SignOut(context.Background()); signOutErr != nil {
		logger.Debug().Err(signOutErr).Msg("sign out on exit failed")
	}
	return err
}
