// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jeranaias/pyllamaui/internal/inference"
)

// eventBuffer is the per-handle event channel capacity.
const eventBuffer = 64

// Transport opens streaming channels to a model backend.
type Transport interface {
	// Dispatch opens a channel for the request, canceling any channel still
	// open. It returns an *Error of kind KindConnect when the backend is
	// unreachable.
	Dispatch(ctx context.Context, req inference.PromptRequest) (*Handle, error)

	// Cancel aborts the channel behind h. Canceling a finished or already
	// canceled handle is a no-op.
	Cancel(h *Handle)

	// ListModels returns the model identifiers the backend can serve.
	ListModels(ctx context.Context) ([]string, error)

	// Close cancels any open channel and releases backend resources.
	Close() error
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorKind categorizes transport failures.
type ErrorKind int

const (
	// KindConnect means the backend could not be reached.
	KindConnect ErrorKind = iota
	// KindParse means a record could not be decoded. These are counted, not returned.
	KindParse
	// KindProcessExit means the helper process terminated unexpectedly.
	KindProcessExit
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindParse:
		return "parse"
	case KindProcessExit:
		return "process_exit"
	default:
		return "unknown"
	}
}

// Error is a transport failure with its category.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrClosed is returned by a transport that has been closed.
var ErrClosed = &Error{Kind: KindConnect, Op: "dispatch", Err: errors.New("transport closed")}

// =============================================================================
// HANDLE
// =============================================================================

// Handle is one open channel to the backend.
type Handle struct {
	id     string
	events chan inference.Event
	done   chan struct{}

	// stop releases the backend side of the channel on cancel.
	stop       func()
	cancelOnce sync.Once

	// mu serializes send against finish so events is never closed mid-send.
	mu     sync.Mutex
	closed bool
}

// NewHandle creates a handle for request id. stop runs once on the first
// cancel. Transport implementations feed it with Send and end it with Finish.
func NewHandle(id string, stop func()) *Handle {
	return &Handle{
		id:     id,
		events: make(chan inference.Event, eventBuffer),
		done:   make(chan struct{}),
		stop:   stop,
	}
}

// ID returns the request id the handle was dispatched for.
func (h *Handle) ID() string { return h.id }

// Events returns the decoded events for this channel.
func (h *Handle) Events() <-chan inference.Event { return h.events }

// Canceled reports whether the handle was canceled.
func (h *Handle) Canceled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Cancel marks the handle canceled and runs its stop hook once.
// It reports whether this call did the canceling. Consumers should cancel
// through their Transport so it can release the channel.
func (h *Handle) Cancel() bool {
	first := false
	h.cancelOnce.Do(func() {
		first = true
		close(h.done)
		if h.stop != nil {
			h.stop()
		}
	})
	return first
}

// Send delivers ev unless the handle is canceled or finished.
// It blocks while the event buffer is full.
func (h *Handle) Send(ev inference.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

// Finish closes the event channel. Safe to call more than once.
func (h *Handle) Finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.events)
	}
}

// deliver sends a batch of events, finishing the handle after a terminal
// one. It reports whether the stream is still open.
func (h *Handle) deliver(events []inference.Event) bool {
	for _, ev := range events {
		if !h.Send(ev) {
			h.Finish()
			return false
		}
		if ev.Terminal() {
			h.Finish()
			return false
		}
	}
	return true
}
