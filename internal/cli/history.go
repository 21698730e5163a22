// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/pyllamaui/internal/session"
	"github.com/jeranaias/pyllamaui/internal/storage"
	"github.com/jeranaias/pyllamaui/internal/util"
)

func newHistoryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   "Browse recorded prompts and replies",
		Long: `Every finished turn (prompt, model, reply and outcome) is recorded in a
SQLite database under the config directory. These commands browse it.`,
	}
	cmd.AddCommand(
		newHistoryListCmd(opts),
		newHistorySearchCmd(opts),
		newHistoryShowCmd(opts),
		newHistoryDeleteCmd(opts),
		newHistoryClearCmd(opts),
		newHistoryExportCmd(opts),
	)
	return cmd
}

// withHistory opens the app and the history store for one command.
func withHistory(cmd *cobra.Command, opts *options, fn func(a *app, store *storage.Store) error) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openHistory()
	if err != nil {
		return NewCommandError("history", cmd.Name(), err)
	}
	return fn(a, store)
}

func newHistoryListCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent turns, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, opts, func(a *app, store *storage.Store) error {
				turns, err := store.Recent(cmd.Context(), limit)
				if err != nil {
					return NewCommandError("history", "list", err)
				}
				fmt.Fprint(cmd.OutOrStdout(), storage.FormatTurnList(turns, terminalWidth(cmd.OutOrStdout())))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of turns to show (0 for all)")
	return cmd
}

func newHistorySearchCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Find turns whose prompt or reply contains text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, opts, func(a *app, store *storage.Store) error {
				turns, err := store.Search(cmd.Context(), strings.Join(args, " "), limit)
				if err != nil {
					return NewCommandError("history", "search", err)
				}
				fmt.Fprint(cmd.OutOrStdout(), storage.FormatTurnList(turns, terminalWidth(cmd.OutOrStdout())))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of matches (0 for all)")
	return cmd
}

func newHistoryShowCmd(opts *options) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one turn (an unambiguous id prefix is enough)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, opts, func(a *app, store *storage.Store) error {
				turn, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return NewCommandError("history", "show", err)
				}
				out := cmd.OutOrStdout()
				if raw || !isTerminal(out) {
					fmt.Fprint(out, storage.ExportMarkdown([]session.Turn{turn}))
					return nil
				}
				fmt.Fprintln(out, formatTurnHeader(turn))
				fmt.Fprintln(out)
				fmt.Fprintln(out, PromptStyle.Render("> ")+turn.Prompt)
				fmt.Fprintln(out)
				width := wrapWidth(a.cfg.UI.WordWrap, terminalWidth(out))
				fmt.Fprintln(out, a.markdown().Render(turn.Response, width))
				if turn.Error != "" {
					fmt.Fprintln(out, ErrorStyle.Render("error: ")+turn.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown instead of rendering it")
	return cmd
}

func formatTurnHeader(t session.Turn) string {
	return fmt.Sprintf("%s  %s  %s  %s  %s",
		t.ID,
		t.StartedAt.Local().Format("2006-01-02 15:04:05"),
		t.Model,
		t.Outcome,
		t.Duration.Round(time.Millisecond),
	)
}

func newHistoryDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, opts, func(a *app, store *storage.Store) error {
				turn, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return NewCommandError("history", "delete", err)
				}
				if err := store.Delete(cmd.Context(), turn.ID); err != nil {
					return NewCommandError("history", "delete", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", turn.ID)
				return nil
			})
		},
	}
}

func newHistoryClearCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if !isInputTerminal(cmd.InOrStdin()) {
					return &UsageError{Message: "history clear needs --yes when not run interactively"}
				}
				fmt.Fprint(cmd.ErrOrStderr(), "Delete all recorded turns? [y/N] ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
					return nil
				}
			}
			return withHistory(cmd, opts, func(a *app, store *storage.Store) error {
				n, err := store.Clear(cmd.Context())
				if err != nil {
					return NewCommandError("history", "clear", err)
				}
				a.log.Info("HISTORY_CLEARED", "turns", n)
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d turns\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newHistoryExportCmd(opts *options) *cobra.Command {
	var (
		format string
		output string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export turns as markdown or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			if format != "markdown" && format != "md" && format != "json" {
				return &UsageError{Message: fmt.Sprintf("unknown export format %q (want markdown or json)", format)}
			}
			return withHistory(cmd, opts, func(a *app, store *storage.Store) error {
				turns, err := store.Recent(cmd.Context(), limit)
				if err != nil {
					return NewCommandError("history", "export", err)
				}

				var data []byte
				if format == "json" {
					if data, err = storage.ExportJSON(turns); err != nil {
						return NewCommandError("history", "export", err)
					}
				} else {
					data = []byte(storage.ExportMarkdown(turns))
				}

				if output == "" || output == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := util.AtomicWriteFile(output, data, 0600); err != nil {
					return NewCommandError("history", "export", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d turns to %s\n", len(turns), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "markdown or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "export only the newest n turns (0 for all)")
	return cmd
}
