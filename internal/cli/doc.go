// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the pyllamaui command line.
//
// Every front end builds the same pieces: configuration and logging, a
// transport for the configured backend, and a session controller whose
// sink is the front end itself.
//
// # Commands
//
//   - (none), bridge: editor protocol on stdin/stdout
//   - serve: webview panel over HTTP and WebSocket
//   - tui: terminal chat panel
//   - ask: one prompt, reply printed or rendered
//   - chat: line-based REPL with input history
//   - models: list backend models
//   - history: list, search, show, delete, clear and export recorded turns
//   - config: list, get, set and locate configuration
//   - version
//
// Errors are returned to Execute, which prints them to stderr and exits with
// a code from ExitCode.
package cli
