// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/pyllamaui/internal/session"
)

func newAskCmd(opts *options) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the model a single question",
		Long: `Send one prompt and print the reply. Without arguments the question
is read from stdin. On a terminal the reply is rendered as markdown once it
is complete; otherwise it is streamed as it arrives.`,
		Example: `  pyllamaui ask "what does git rebase --onto do?"
  git diff | pyllamaui ask --model codellama`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if strings.TrimSpace(question) == "" && !isInputTerminal(cmd.InOrStdin()) {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read question: %w", err)
				}
				question = string(data)
			}
			if strings.TrimSpace(question) == "" {
				return &UsageError{Message: "ask needs a question"}
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			pretty := !raw && isTerminal(out)

			var sw *streamWriter
			var onText func(string)
			if !pretty {
				sw = &streamWriter{w: out}
				onText = sw.update
			}
			sink := newPromptSink(onText)

			ctrl, stopCtrl := startController(ctx, a.newTransport(ctx), sink, a.sessionOptions()...)
			defer stopCtrl()

			if err := ctrl.SubmitPrompt(question, a.cfg.DefaultModel); err != nil {
				if errors.Is(err, session.ErrEmptyPrompt) {
					return &UsageError{Message: err.Error()}
				}
				return err
			}
			if pretty {
				fmt.Fprintln(cmd.ErrOrStderr(), DimStyle.Render("Thinking..."))
			}

			reply, err := sink.wait(ctx)
			if sw != nil {
				sw.finish()
			}
			if err != nil {
				// Interrupted: keep whatever arrived.
				if pretty && reply != "" {
					fmt.Fprintln(out, reply)
				}
				return nil
			}
			if reply == "" {
				return ErrNoResponse
			}
			if pretty {
				fmt.Fprintln(out, a.markdown().Render(reply, wrapWidth(a.cfg.UI.WordWrap, terminalWidth(out))))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the reply as plain text even on a terminal")
	return cmd
}

// wrapWidth caps the terminal width at the configured word wrap.
func wrapWidth(wordWrap, width int) int {
	if wordWrap > 0 && wordWrap < width {
		return wordWrap
	}
	return width
}
