package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/parley/internal/api"
	"github.com/tOgg1/parley/internal/chat"
	"github.com/tOgg1/parley/internal/preview"
)

const previewWidth = 40

type rosterRow struct {
	chat.Counterparty
	LastMessage *chat.Message `json:"last_message,omitempty"`
}

func newRosterCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "roster",
		Aliases: []string{"ls", "chats"},
		Short:   "List people you can message",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.newServices()
			if err != nil {
				return err
			}
			principal, err := opts.signIn(cmd, svc, "")
			if err != nil {
				return err
			}

			roster, err := svc.api.LoadRoster(cmd.Context())
			if err != nil {
				return err
			}
			roster = api.FilterRoster(roster, principal.ID)

			withPreviews, _ := cmd.Flags().GetBool("previews")
			cache := preview.New()
			if withPreviews {
				tails, err := api.LoadPreviews(cmd.Context(), svc.api, roster, principal.ID, opts.cfg.Engine.PreviewConcurrency)
				if err != nil {
					return err
				}
				for id, msg := range tails {
					cache.Upsert(id, msg)
				}
			}

			rows := make([]rosterRow, 0, len(roster))
			for _, entry := range roster {
				rows = append(rows, rosterRow{
					Counterparty: entry,
					LastMessage:  cache.Preview(entry.ID).LastMessage,
				})
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			return writeRoster(cmd.OutOrStdout(), rows, withPreviews)
		},
	}
	cmd.Flags().Bool("previews", true, "fetch the last message of each conversation")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func writeRoster(out io.Writer, rows []rosterRow, withPreviews bool) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "Nobody to message yet.")
		return err
	}
	headers := []string{"ID", "NAME", "EMAIL"}
	if withPreviews {
		headers = append(headers, "LAST MESSAGE")
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := []string{row.ID, row.Name, row.Email}
		if withPreviews {
			cells = append(cells, oneLine(preview.Summary(row.LastMessage, previewWidth), previewWidth+3))
		}
		table = append(table, cells)
	}
	return writeTable(out, headers, table)
}

func newHistoryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history <counterparty-id>",
		Aliases: []string{"log"},
		Short:   "Print a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := chat.NormalizeParticipantID(args[0])
			if err != nil {
				return err
			}
			svc, err := opts.newServices()
			if err != nil {
				return err
			}
			principal, err := opts.signIn(cmd, svc, "")
			if err != nil {
				return err
			}

			history, err := svc.api.LoadHistory(cmd.Context(), id)
			if errors.Is(err, chat.ErrNotFound) {
				history, err = []chat.Message{}, nil
			}
			if err != nil {
				return err
			}
			if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(history) > limit {
				history = history[len(history)-limit:]
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return writeJSON(cmd.OutOrStdout(), history)
			}
			return writeHistory(cmd.OutOrStdout(), principal, history)
		},
	}
	cmd.Flags().Int("limit", 0, "show only the last N messages")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func writeHistory(out io.Writer, principal chat.Principal, history []chat.Message) error {
	if len(history) == 0 {
		_, err := fmt.Fprintln(out, preview.NoMessages)
		return err
	}
	for _, msg := range history {
		author := msg.From
		if msg.IsFrom(principal.ID) {
			author = "you"
		}
		ts := msg.ID.Time().Local().Format(time.DateTime)
		if _, err := fmt.Fprintf(out, "%s  %s: %s\n", ts, author, msg.Text); err != nil {
			return err
		}
	}
	return nil
}

func newSendCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <counterparty-id> [text...]",
		Short: "Send a message",
		Long:  "Send a message over HTTP. With no text arguments the body is read from piped stdin.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := chat.NormalizeParticipantID(args[0])
			if err != nil {
				return err
			}
			raw := strings.Join(args[1:], " ")
			if strings.TrimSpace(raw) == "" {
				raw, err = readPiped(cmd)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			text, err := chat.NormalizeText(raw)
			if err != nil {
				return fmt.Errorf("message body is required: %w", err)
			}

			svc, err := opts.newServices()
			if err != nil {
				return err
			}
			if _, err := opts.signIn(cmd, svc, ""); err != nil {
				return err
			}
			if err := svc.api.PostMessage(cmd.Context(), id, text); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s\n", id)
			return nil
		},
	}
	return cmd
}

// readPiped reads stdin only when it is not a terminal.
func readPiped(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if file, ok := in.(*os.File); ok && isTerminal(file) {
		return "", nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
