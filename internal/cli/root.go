// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// options holds the global flags.
type options struct {
	configPath  string
	backend     string
	model       string
	ollamaURL   string
	startOllama bool
	logStderr   bool
	logLevel    string
	noHistory   bool
}

// NewRootCommand builds the command tree. Running it without a subcommand
// starts the editor bridge.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "pyllamaui",
		Short: "Chat panel bridge for local language models",
		Long: `pyllamaui connects an editor chat panel to a local model backend.

Run without a command, it speaks line-delimited JSON on stdin/stdout so an
editor plugin can drive it. The other commands serve the same panel to a
webview, open it in the terminal, or talk to the model directly.

Examples:
  pyllamaui                          # editor bridge on stdin/stdout
  pyllamaui serve --addr :8765       # webview panel
  pyllamaui tui                      # terminal panel
  pyllamaui ask "explain this regex" # one-shot prompt
  pyllamaui history search docker    # search recorded turns`,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.pyllamaui/config.toml)")
	pf.StringVar(&opts.backend, "backend", "", "model backend: http or process")
	pf.StringVarP(&opts.model, "model", "m", "", "model name (overrides default_model)")
	pf.StringVar(&opts.ollamaURL, "ollama-url", "", "Ollama server address")
	pf.BoolVar(&opts.startOllama, "start-ollama", false, "start 'ollama serve' if the server is not running")
	pf.BoolVar(&opts.logStderr, "log-stderr", false, "log to stderr instead of the log file")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&opts.noHistory, "no-history", false, "do not record turns in the history database")

	root.AddCommand(
		newBridgeCmd(opts),
		newServeCmd(opts),
		newTUICmd(opts),
		newAskCmd(opts),
		newChatCmd(opts),
		newModelsCmd(opts),
		newHistoryCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and exits with a code matching the error.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
		os.Exit(ExitCode(err))
	}
}
