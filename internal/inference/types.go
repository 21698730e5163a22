// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inference defines the values exchanged between the chat session
// and the model backend.
package inference

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// DefaultModel is used when neither the request nor the configuration names a model.
const DefaultModel = "llama2"

// ErrEmptyPrompt is returned when a prompt has no text after trimming.
var ErrEmptyPrompt = errors.New("prompt text is empty")

// =============================================================================
// PROMPT REQUEST
// =============================================================================

// PromptRequest is a single dispatch of a user prompt. It is immutable once
// created; fields are unexported and read through accessors.
type PromptRequest struct {
	text      string
	model     string
	requestID string
}

// NewPromptRequest validates the prompt and assigns a fresh request id.
// An empty model falls back to DefaultModel.
func NewPromptRequest(text, model string) (PromptRequest, error) {
	if strings.TrimSpace(text) == "" {
		return PromptRequest{}, ErrEmptyPrompt
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return PromptRequest{
		text:      text,
		model:     model,
		requestID: uuid.New().String(),
	}, nil
}

// Text returns the prompt text.
func (r PromptRequest) Text() string { return r.text }

// Model returns the model identifier.
func (r PromptRequest) Model() string { return r.model }

// RequestID returns the token unique to this dispatch.
func (r PromptRequest) RequestID() string { return r.requestID }

// IsZero reports whether the request was never initialised.
func (r PromptRequest) IsZero() bool { return r.requestID == "" }

// =============================================================================
// INFERENCE EVENTS
// =============================================================================

// EventKind tags the variant held by an Event.
type EventKind int

const (
	// EventTextDelta carries one incremental fragment of generated text.
	EventTextDelta EventKind = iota
	// EventDone marks the successful end of a stream.
	EventDone
	// EventError marks a backend-reported failure; it also ends the stream.
	EventError
)

// String returns the lowercase name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventTextDelta:
		return "text_delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one decoded backend event.
// Content is set for EventTextDelta, Message for EventError.
type Event struct {
	Kind    EventKind
	Content string
	Message string
}

// TextDelta builds a text fragment event.
func TextDelta(content string) Event {
	return Event{Kind: EventTextDelta, Content: content}
}

// Done builds a completion event.
func Done() Event {
	return Event{Kind: EventDone}
}

// Error builds an error event.
func Error(message string) Event {
	return Event{Kind: EventError, Message: message}
}

// Terminal reports whether the event ends its stream.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// =============================================================================
// SESSION STATE
// =============================================================================

// State is a snapshot of the chat session.
// Active is true exactly when CurrentRequestID is non-empty.
type State struct {
	Active           bool
	CurrentRequestID string
	AccumulatedText  string
}
