// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/pyllamaui/internal/config"
	"github.com/jeranaias/pyllamaui/internal/util"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		Long: `Show or change configuration. Keys use dot notation, for example
backend.kind or ui.theme. Run 'pyllamaui config list' to see them all.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print every key with its value",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := loadFileConfig(opts)
				if err != nil {
					return err
				}
				return printConfig(cmd.OutOrStdout(), cfg)
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := loadFileConfig(opts)
				if err != nil {
					return err
				}
				v, err := cfg.Get(args[0])
				if err != nil {
					return &UsageError{Message: err.Error()}
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatValue(v))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one value and save the file",
			Example: `  pyllamaui config set default_model mistral
  pyllamaui config set backend.kind process
  pyllamaui config set panel.allowed_origins vscode-webview://abc,http://localhost:3000`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, path, err := loadFileConfig(opts)
				if err != nil {
					return err
				}
				if path == "" {
					return NewCommandError("config", "set", errors.New("no config file location"))
				}
				if err := cfg.Set(args[0], args[1]); err != nil {
					return &UsageError{Message: err.Error()}
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := config.SaveTo(cfg, path); err != nil {
					return NewCommandError("config", "set", err)
				}
				v, _ := cfg.Get(args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], formatValue(v))
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, path, err := loadFileConfig(opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
	)
	return cmd
}

func printConfig(w io.Writer, cfg *config.Config) error {
	keys := config.Keys()
	width := 0
	for _, k := range keys {
		if n := util.StringWidth(k); n > width {
			width = n
		}
	}
	for _, k := range keys {
		v, err := cfg.Get(k)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  %s\n", util.PadWidth(k, width), formatValue(v))
	}
	return nil
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case []string:
		return strings.Join(x, ",")
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
