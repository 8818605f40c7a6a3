package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tOgg1/parley/internal/config"
	"github.com/tOgg1/parley/internal/logging"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := yaml.Marshal(redactConfig(*opts.cfg))
				if err != nil {
					return fmt.Errorf("encode config: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file in use",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				used := opts.loader.ConfigFileUsed()
				if used == "" {
					used = "(none, using defaults and environment)"
				}
				fmt.Fprintln(cmd.OutOrStdout(), used)
				fmt.Fprintln(cmd.OutOrStdout(), "context:", opts.contexts.Path())
				return nil
			},
		},
		&cobra.Command{
			Use:   "env",
			Short: "List environment overrides",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				rows := make([][]string, 0, len(config.EnvKeys()))
				for _, key := range config.EnvKeys() {
					rows = append(rows, []string{key, config.EnvVar(key)})
				}
				rows = append(rows, []string{"(credentials)", envEmail + ", " + envPassword + ", " + envGoogleIDToken})
				return writeTable(cmd.OutOrStdout(), []string{"KEY", "VARIABLE"}, rows)
			},
		},
	)
	return cmd
}

func redactConfig(cfg config.Config) config.Config {
	if cfg.Auth.APIKey != "" {
		cfg.Auth.APIKey = logging.RedactToken(cfg.Auth.APIKey)
	}
	return cfg
}
