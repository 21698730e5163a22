// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"encoding/json"

	"github.com/jeranaias/pyllamaui/internal/session"
)

// =============================================================================
// INBOUND COMMANDS
// =============================================================================

// Command names accepted from the editor or webview.
const (
	CmdSendPrompt   = "sendPrompt"
	CmdStopPrompt   = "stopPrompt"
	CmdGetModelList = "getModelList"
	CmdSetModel     = "setModel"
	CmdSetTheme     = "setTheme"
	CmdPing         = "ping"
)

// Command is one inbound request.
type Command struct {
	Command string `json:"command"`
	Text    string `json:"text,omitempty"`
	Model   string `json:"model,omitempty"`
	Theme   string `json:"theme,omitempty"`
}

// =============================================================================
// OUTBOUND MESSAGES
// =============================================================================

// Message types sent to the editor or webview.
const (
	TypeTextUpdated    = "textUpdated"
	TypeStreamComplete = "streamComplete"
	TypeModelList      = "modelList"
	TypeSetModel       = "setModel"
	TypeSetTheme       = "setTheme"
	TypePong           = "pong"
	TypeError          = "error"
)

// Message is one outbound notification. Only the fields its Type names are
// encoded.
type Message struct {
	Type    string   `json:"type"`
	Text    string   `json:"text,omitempty"`
	HTML    string   `json:"html,omitempty"`
	Models  []string `json:"models,omitempty"`
	Model   string   `json:"model,omitempty"`
	Theme   string   `json:"theme,omitempty"`
	Message string   `json:"message,omitempty"`
}

// MarshalJSON encodes the fields relevant to m.Type. A modelList always
// carries an array, even when empty.
func (m Message) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": m.Type}
	switch m.Type {
	case TypeTextUpdated:
		out["text"] = m.Text
		if m.HTML != "" {
			out["html"] = m.HTML
		}
	case TypeModelList:
		models := m.Models
		if models == nil {
			models = []string{}
		}
		out["models"] = models
	case TypeSetModel:
		out["model"] = m.Model
	case TypeSetTheme:
		out["theme"] = m.Theme
	case TypeError:
		out["message"] = m.Message
	}
	return json.Marshal(out)
}

// FromNotification converts a controller notification to a wire message.
func FromNotification(n session.Notification) Message {
	switch n.Type {
	case session.TextUpdated:
		return Message{Type: TypeTextUpdated, Text: n.Text}
	case session.ModelList:
		return Message{Type: TypeModelList, Models: n.Models}
	default:
		return Message{Type: string(n.Type)}
	}
}

// ErrorMessage builds a protocol error message.
func ErrorMessage(msg string) Message {
	return Message{Type: TypeError, Message: msg}
}
