// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "time"

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// NotificationType names a UI-facing notification.
type NotificationType string

const (
	// TextUpdated carries the full accumulated text of the current reply.
	TextUpdated NotificationType = "textUpdated"
	// StreamComplete marks the end of the current reply, whatever the cause.
	StreamComplete NotificationType = "streamComplete"
	// ModelList carries the backend's models.
	ModelList NotificationType = "modelList"
)

// Notification is one update for the UI.
type Notification struct {
	Type   NotificationType
	Text   string
	Models []string
}

// Sink consumes notifications. Notify is called from the controller
// goroutine and should not block for long.
type Sink interface {
	Notify(Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notification)

// Notify calls f(n).
func (f SinkFunc) Notify(n Notification) { f(n) }

// =============================================================================
// TURN RECORDING
// =============================================================================

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeDone       Outcome = "done"
	OutcomeError      Outcome = "error"
	OutcomeCanceled   Outcome = "canceled"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeFailed     Outcome = "dispatch_failed"
	OutcomeClosed     Outcome = "closed"
)

// Turn is one finished prompt and its reply.
type Turn struct {
	ID        string
	Prompt    string
	Model     string
	Response  string
	Outcome   Outcome
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder persists finished turns.
type Recorder interface {
	RecordTurn(t Turn) error
}
