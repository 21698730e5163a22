// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package panel serves the chat panel to an editor webview.
//
// The page is embedded in the binary. It talks to the session over a
// WebSocket at /ws using the same command and message shapes as the stdio
// bridge; textUpdated messages also carry an HTML rendering of the reply.
package panel
