// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bridge connects the chat session to a host editor over
// line-delimited JSON on stdin and stdout.
//
// Inbound commands:
//
//	{"command":"sendPrompt","text":"...","model":"..."}
//	{"command":"stopPrompt"}
//	{"command":"getModelList"}
//	{"command":"setModel","model":"..."}
//	{"command":"setTheme","theme":"dark"}
//	{"command":"ping"}
//
// Outbound messages:
//
//	{"type":"textUpdated","text":"..."}
//	{"type":"streamComplete"}
//	{"type":"modelList","models":[...]}
//	{"type":"setModel","model":"..."}
//	{"type":"setTheme","theme":"..."}
//	{"type":"pong"}
//	{"type":"error","message":"..."}
//
// The Dispatcher is shared with the webview panel, which speaks the same
// messages over a WebSocket.
package bridge
