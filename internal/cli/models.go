// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/pyllamaui/internal/config"
	"github.com/jeranaias/pyllamaui/internal/util"
)

// modelsTimeout bounds a model list request.
const modelsTimeout = 15 * time.Second

func newModelsCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models the backend offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), modelsTimeout)
			defer cancel()

			models, err := a.listModels(ctx)
			if err != nil {
				return NewCommandError("models", "", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				names := make([]string, 0, len(models))
				for _, m := range models {
					names = append(names, m.name)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(names)
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), NoticeStyle.Render("No models installed."))
				return nil
			}
			width := 0
			for _, m := range models {
				width = max(width, util.StringWidth(m.name))
			}
			for _, m := range models {
				marker := "  "
				if m.name == a.cfg.DefaultModel {
					marker = "* "
				}
				if m.size == "" {
					fmt.Fprintln(out, marker+m.name)
					continue
				}
				fmt.Fprintf(out, "%s%s  %s\n", marker, util.PadWidth(m.name, width), m.size)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the list as JSON")
	return cmd
}

// modelEntry is one row of the model list. size is empty when the backend
// does not report it.
type modelEntry struct {
	name string
	size string
}

// listModels asks the configured backend for its models. Ollama also
// reports their sizes.
func (a *app) listModels(ctx context.Context) ([]modelEntry, error) {
	if a.cfg.Backend.Kind == config.BackendProcess {
		tr := a.newTransport(ctx)
		defer tr.Close()
		names, err := tr.ListModels(ctx)
		if err != nil {
			return nil, err
		}
		entries := make([]modelEntry, 0, len(names))
		for _, n := range names {
			entries = append(entries, modelEntry{name: n})
		}
		return entries, nil
	}

	client := a.ollamaClient()
	if a.cfg.Backend.StartOllama {
		if err := client.EnsureRunning(ctx); err != nil {
			a.log.Warn("OLLAMA_START_FAILED", "url", client.BaseURL(), "error", err)
		}
	}
	infos, err := client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]modelEntry, 0, len(infos))
	for _, m := range infos {
		if m.Name == "" {
			continue
		}
		entries = append(entries, modelEntry{name: m.Name, size: m.FormatSize()})
	}
	return entries, nil
}
