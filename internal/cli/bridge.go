// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/pyllamaui/internal/bridge"
	"github.com/jeranaias/pyllamaui/internal/config"
)

func newBridgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Speak the editor protocol on stdin/stdout (default)",
		Long: `Run the editor bridge. Commands arrive as JSON lines on stdin and
notifications leave as JSON lines on stdout. Logs never go to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, opts)
		},
	}
}

func runBridge(cmd *cobra.Command, opts *options) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := bridge.New(cmd.InOrStdin(), cmd.OutOrStdout(), bridge.WithLogger(a.log))
	ctrl, stopCtrl := startController(ctx, a.newTransport(ctx), b, a.sessionOptions()...)
	defer stopCtrl()

	settings := bridge.NewConfigSettings(a.cfg, a.cfgPath)
	d := bridge.NewDispatcher(ctrl, settings, nil, a.log)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go a.watchConfig(watchCtx, func(cfg *config.Config) {
		model, theme := settings.Apply(cfg)
		d.Reloaded(model, theme, b.Send)
	})

	a.log.Info("BRIDGE_START", "backend", a.cfg.Backend.Kind, "model", settings.Model())
	err = b.Serve(ctx, d)
	a.log.Info("BRIDGE_STOP", "error", err)
	return err
}
