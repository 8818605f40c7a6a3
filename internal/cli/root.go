// Package cli implements the parley command line.
package cli

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/parley/internal/config"
	"github.com/tOgg1/parley/internal/logging"
)

// Execute runs the root command against os.Args.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

// options is shared by every subcommand. PersistentPreRunE fills cfg.
type options struct {
	configFile string
	logLevel   string
	logFormat  string
	// idToken is a Google ID token from `login --id-token`.
	idToken string

	cfg      *config.Config
	loader   *config.Loader
	contexts *config.ContextStore
}

func newRootCmd(version string) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "parley",
		Short:         "Direct messages from the terminal",
		Long:          "parley is a two-party direct-messaging client with a live terminal UI.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ~/.config/parley/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (console, json)")

	cmd.AddCommand(
		newLoginCmd(opts),
		newSignupCmd(opts),
		newLogoutCmd(opts),
		newRosterCmd(opts),
		newHistoryCmd(opts),
		newSendCmd(opts),
		newTUICmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

func (o *options) load(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if o.configFile != "" {
		loader.SetConfigFile(o.configFile)
	}
	if level := strings.TrimSpace(o.logLevel); level != "" {
		loader.Set("logging.level", level)
	}
	if format := strings.TrimSpace(o.logFormat); format != "" {
		loader.Set("logging.format", format)
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.loader = loader
	if o.contexts == nil {
		o.contexts = config.DefaultContextStore()
	}

	o.initLogging(cmd.ErrOrStderr())
	return nil
}

func (o *options) initLogging(out io.Writer) {
	logging.Init(logging.Config{
		Level:        o.cfg.Logging.Level,
		Format:       o.cfg.Logging.Format,
		Output:       out,
		EnableCaller: o.cfg.Logging.EnableCaller,
	})
}

// initFileLogging sends logs to the configured file, or nowhere. Used while a
// full-screen UI owns the terminal.
func (o *options) initFileLogging() (func(), error) {
	if o.cfg.Logging.File == "" {
		o.initLogging(io.Discard)
		return func() {}, nil
	}
	file, err := logging.OpenFile(o.cfg.Logging.File)
	if err != nil {
		return nil, err
	}
	o.initLogging(file)
	return func() { _ = file.Close() }, nil
}

func hasTTY() bool {
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}
