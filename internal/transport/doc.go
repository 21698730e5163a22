// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport connects a chat session to a model backend.
//
// A Transport opens one streaming channel per dispatched prompt and exposes
// the decoded events through a Handle. Two backends are provided:
//
//   - HTTPTransport: an Ollama server's streaming /api/generate endpoint
//   - ProcessTransport: a long-lived helper process speaking line-delimited
//     JSON over stdin and stdout
//
// # Channel Lifetime
//
// Each transport keeps at most one channel open. Dispatching a new prompt
// cancels the previous handle first. A handle's Events channel is closed
// after its terminal event (Done or Error) or once it has been canceled.
//
// # Errors
//
// Dispatch fails fast with an *Error of kind KindConnect when the backend
// cannot be reached. Malformed records are dropped by the stream parser and
// only counted. A helper process that exits mid-stream ends that stream with
// Done.
package transport
