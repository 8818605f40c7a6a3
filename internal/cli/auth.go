package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/state"
)

func newLoginCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify credentials and remember the account",
		Long: "Sign in once to check the credentials, register the profile with the\n" +
			"messaging service and remember the email for later commands. The\n" +
			"password and tokens are never written to disk. With --google the\n" +
			"session comes from a Google ID token instead of a password.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.newServices()
			if err != nil {
				return err
			}
			var principal chat.Principal
			if google, _ := cmd.Flags().GetBool("google"); google {
				opts.idToken, _ = cmd.Flags().GetString("id-token")
				principal, err = opts.signInGoogle(cmd, svc)
			} else {
				email, _ := cmd.Flags().GetString("email")
				principal, err = opts.signIn(cmd, svc, email)
			}
			if err != nil {
				return err
			}
			svc.session.WaitRegistered()
			jsonOutput, _ := cmd.Flags().GetBool("json")
			return writePrincipal(cmd.OutOrStdout(), "Signed in as", principal, jsonOutput)
		},
	}
	cmd.Flags().String("email", "", "account email (default: last used, or "+envEmail+")")
	cmd.Flags().Bool("google", false, "sign in with a Google ID token")
	cmd.Flags().String("id-token", "", "Google ID token for --google (or "+envGoogleIDToken+")")
	cmd.Flags().Bool("json", false, "output as JSON")
	cmd.MarkFlagsMutuallyExclusive("google", "email")
	return cmd
}

func newSignupCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.newServices()
			if err != nil {
				return err
			}
			emailFlag, _ := cmd.Flags().GetString("email")
			email, password, err := opts.credentials(cmd, emailFlag)
			if err != nil {
				return err
			}
			principal, err := svc.session.SignUp(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("sign up: %w", err)
			}
			svc.session.WaitRegistered()
			opts.remember(email, principal)
			jsonOutput, _ := cmd.Flags().GetBool("json")
			return writePrincipal(cmd.OutOrStdout(), "Created", principal, jsonOutput)
		},
	}
	cmd.Flags().String("email", "", "account email (or "+envEmail+")")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func newLogoutCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the remembered account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := opts.contexts.Load()
			if err != nil {
				return err
			}
			if purge, _ := cmd.Flags().GetBool("purge"); purge && current.PrincipalID != "" {
				if err := purgeLocalState(cmd.Context(), opts.cfg.State.Path, current.PrincipalID); err != nil {
					return err
				}
			}
			if err := opts.contexts.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
	cmd.Flags().Bool("purge", false, "also delete saved drafts for the account")
	return cmd
}

func purgeLocalState(ctx context.Context, path, principalID string) error {
	store, err := state.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Forget(ctx, principalID)
}

func writePrincipal(out io.Writer, verb string, principal chat.Principal, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(out, principal)
	}
	fmt.Fprintf(out, "%s %s (%s)\n", verb, principal.Label(), principal.ID)
	return nil
}
