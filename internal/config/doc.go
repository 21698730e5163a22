// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for pyllamaui.
//
// Supports TOML, JSON and YAML configuration formats, with sensible defaults,
// environment variable overrides, validation, and live reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - BackendConfig: Which model backend to use and how to reach it
//   - UIConfig: Theme and rendering settings shared by the front ends
//   - HistoryConfig: Turn history database settings
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (PYLLAMAUI_*)
//   - ~/.pyllamaui/config.toml
//   - ~/.pyllamaui/config.json
//   - ~/.pyllamaui/config.yaml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    slog.Warn("CONFIG_LOAD_FAILED", "error", err)
//	}
//
// Persist a model selection:
//
//	cfg.DefaultModel = "mistral"
//	err := config.Save(cfg)
//
// Reload on change:
//
//	go config.Watch(ctx, path, config.DefaultDebounce, func(cfg *config.Config, err error) { ... })
package config
