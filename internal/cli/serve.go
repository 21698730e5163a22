// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/pyllamaui/internal/bridge"
	"github.com/jeranaias/pyllamaui/internal/config"
	"github.com/jeranaias/pyllamaui/internal/panel"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat panel to a webview",
		Long: `Serve the chat panel over HTTP and WebSocket. Every connected panel
shares one session; settings changes reach all of them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.Panel.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := panel.New(
				panel.WithLogger(a.log),
				panel.WithAllowedOrigins(a.cfg.Panel.AllowedOrigins),
			)
			ctrl, stopCtrl := startController(ctx, a.newTransport(ctx), srv, a.sessionOptions()...)
			defer stopCtrl()

			settings := bridge.NewConfigSettings(a.cfg, a.cfgPath)
			d := bridge.NewDispatcher(ctrl, settings, srv.Broadcast, a.log)
			srv.SetDispatcher(d)

			watchCtx, stopWatch := context.WithCancel(ctx)
			defer stopWatch()
			go a.watchConfig(watchCtx, func(cfg *config.Config) {
				model, theme := settings.Apply(cfg)
				d.Reloaded(model, theme, srv.Broadcast)
			})

			fmt.Fprintf(cmd.ErrOrStderr(), "Panel at http://%s/\n", addr)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default panel.addr)")
	return cmd
}
