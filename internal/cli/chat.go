// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/pyllamaui/internal/config"
	"github.com/jeranaias/pyllamaui/internal/session"
)

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of user input.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close()
}

// linerReader provides line editing and persistent input history.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader() *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &linerReader{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *linerReader) Close() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// scanReader reads piped input without line editing.
type scanReader struct {
	scanner *bufio.Scanner
}

func (r *scanReader) Prompt(prompt string) (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) Close() {}

// =============================================================================
// CHAT COMMAND
// =============================================================================

const chatHelp = `Commands:
  /model [name]  show or switch the model
  /models        list the backend's models
  /help          show this help
  /quit          leave the chat
Press Ctrl+C while a reply streams to stop it.`

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the model in a simple line-based REPL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var in lineReader
			if isInputTerminal(cmd.InOrStdin()) {
				in = newLinerReader()
			} else {
				in = &scanReader{scanner: bufio.NewScanner(cmd.InOrStdin())}
			}
			defer in.Close()

			r := &repl{
				app:   a,
				in:    in,
				out:   cmd.OutOrStdout(),
				errw:  cmd.ErrOrStderr(),
				model: a.cfg.DefaultModel,
			}
			return r.run(cmd.Context())
		},
	}
}

// repl drives one chat session.
type repl struct {
	app   *app
	in    lineReader
	out   io.Writer
	errw  io.Writer
	model string

	ctrl   *session.Controller
	sink   *promptSink
	writer *streamWriter
}

func (r *repl) run(ctx context.Context) error {
	r.writer = &streamWriter{w: r.out}
	r.sink = newPromptSink(r.writer.update)

	var stop func()
	r.ctrl, stop = startController(ctx, r.app.newTransport(ctx), r.sink, r.app.sessionOptions()...)
	defer stop()

	fmt.Fprintf(r.errw, "Chatting with %s. Type /help for commands.\n", r.model)
	for {
		line, err := r.in.Prompt(PromptStyle.Render("pyllamaui> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if !r.command(ctx, line) {
				return nil
			}
		default:
			if err := r.ask(ctx, line); err != nil {
				return err
			}
		}
	}
}

// ask sends one prompt and streams the reply. Ctrl+C stops the reply
// rather than the chat.
func (r *repl) ask(ctx context.Context, text string) error {
	r.sink.begin()
	if err := r.ctrl.SubmitPrompt(text, r.model); err != nil {
		return err
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-interrupts:
			_ = r.ctrl.CancelPrompt()
		case <-waitCtx.Done():
		}
	}()

	reply, err := r.sink.wait(ctx)
	r.writer.finish()
	if err != nil {
		return nil
	}
	if reply == "" {
		fmt.Fprintln(r.errw, NoticeStyle.Render("(no response)"))
	}
	return nil
}

// command runs a slash command and reports whether the chat continues.
func (r *repl) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit", "/q":
		return false
	case "/help", "/?":
		fmt.Fprintln(r.errw, chatHelp)
	case "/model":
		if len(fields) > 1 {
			r.model = fields[1]
		}
		fmt.Fprintf(r.errw, "model: %s\n", r.model)
	case "/models":
		if err := r.ctrl.ListModels(); err != nil {
			fmt.Fprintf(r.errw, "%s %v\n", ErrorStyle.Render("Error:"), err)
			return true
		}
		select {
		case models := <-r.sink.models:
			if len(models) == 0 {
				fmt.Fprintln(r.errw, NoticeStyle.Render("no models available"))
			}
			for _, m := range models {
				fmt.Fprintln(r.out, m)
			}
		case <-ctx.Done():
			return false
		}
	default:
		fmt.Fprintf(r.errw, "%s unknown command %s (try /help)\n", ErrorStyle.Render("Error:"), fields[0])
	}
	return true
}
