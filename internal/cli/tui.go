// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/pyllamaui/internal/bridge"
	"github.com/jeranaias/pyllamaui/internal/config"
	"github.com/jeranaias/pyllamaui/internal/ui/chat"
)

func newTUICmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the chat panel in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sink := chat.NewSink()
			ctrl, stopCtrl := startController(ctx, a.newTransport(ctx), sink, a.sessionOptions()...)
			defer stopCtrl()

			settings := bridge.NewConfigSettings(a.cfg, a.cfgPath)
			m := chat.New(ctrl, settings, sink, chat.Options{
				RenderFPS: a.cfg.UI.RenderFPS,
				WordWrap:  a.cfg.UI.WordWrap,
			})

			p := tea.NewProgram(m,
				tea.WithAltScreen(),
				tea.WithMouseCellMotion(),
				tea.WithContext(ctx),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)

			go a.watchConfig(ctx, func(cfg *config.Config) {
				if model, theme := settings.Apply(cfg); model || theme {
					p.Send(chat.SettingsChangedMsg{})
				}
			})

			a.log.Info("TUI_START", "model", settings.Model())
			_, err = p.Run()
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
