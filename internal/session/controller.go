// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jeranaias/pyllamaui/internal/inference"
	"github.com/jeranaias/pyllamaui/internal/transport"
)

// Errors returned by the controller.
var (
	// ErrEmptyPrompt is returned by SubmitPrompt for blank text.
	ErrEmptyPrompt = inference.ErrEmptyPrompt
	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("session controller stopped")
	// ErrRunning is returned by a second concurrent call to Run.
	ErrRunning = errors.New("session controller already running")
)

// inboxSize bounds queued commands and transport events.
const inboxSize = 256

// =============================================================================
// PHASE
// =============================================================================

// Phase is the controller's position in the prompt lifecycle.
type Phase int

const (
	Idle Phase = iota
	Dispatching
	Streaming
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// =============================================================================
// INBOX MESSAGES
// =============================================================================

type (
	submitMsg     struct{ req inference.PromptRequest }
	cancelMsg     struct{}
	listModelsMsg struct{}
	dispatchedMsg struct {
		id     string
		handle *transport.Handle
		err    error
	}
	eventMsg struct {
		id string
		ev inference.Event
	}
	closedMsg struct{ id string }
	modelsMsg struct{ models []string }
)

// =============================================================================
// CONTROLLER
// =============================================================================

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder stores every finished turn.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Controller runs the single chat session.
type Controller struct {
	transport transport.Transport
	sink      Sink
	recorder  Recorder
	log       *slog.Logger

	inbox   chan any
	stopped chan struct{}
	running sync.Mutex
	workers sync.WaitGroup

	// Owned by the Run goroutine.
	ctx            context.Context
	phase          Phase
	state          inference.State
	req            inference.PromptRequest
	handle         *transport.Handle
	cancelDispatch context.CancelFunc
	startedAt      time.Time

	// Published copy of phase and state for State and Phase.
	snapMu    sync.RWMutex
	snapPhase Phase
	snapState inference.State
}

// New creates a controller. Call Run to start processing.
func New(tr transport.Transport, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		transport: tr,
		sink:      sink,
		inbox:     make(chan any, inboxSize),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.sink == nil {
		c.sink = SinkFunc(func(Notification) {})
	}
	c.log = c.log.With("component", "session")
	return c
}

// Run processes commands and transport events until ctx is done. Any
// in-flight prompt is canceled on exit.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.TryLock() {
		return ErrRunning
	}
	defer c.running.Unlock()

	select {
	case <-c.stopped:
		return ErrStopped
	default:
	}

	c.ctx = ctx
	defer func() {
		c.abort(OutcomeCanceled)
		close(c.stopped)
		c.workers.Wait()
		c.drain()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.inbox:
			c.process(msg)
		}
	}
}

// Done is closed after Run returns.
func (c *Controller) Done() <-chan struct{} { return c.stopped }

// SubmitPrompt starts a new prompt, canceling the current one first.
func (c *Controller) SubmitPrompt(text, model string) error {
	req, err := inference.NewPromptRequest(text, model)
	if err != nil {
		return err
	}
	return c.post(submitMsg{req: req})
}

// CancelPrompt stops the current prompt. It does nothing when idle.
func (c *Controller) CancelPrompt() error {
	return c.post(cancelMsg{})
}

// ListModels asks the backend for its models; the answer arrives as a
// ModelList notification.
func (c *Controller) ListModels() error {
	return c.post(listModelsMsg{})
}

// State returns a snapshot of the session state.
func (c *Controller) State() inference.State {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapState
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapPhase
}

func (c *Controller) post(msg any) error {
	select {
	case <-c.stopped:
		return ErrStopped
	default:
	}
	select {
	case c.inbox <- msg:
		return nil
	case <-c.stopped:
		return ErrStopped
	}
}

// forward posts from a worker goroutine, giving up once Run has exited.
func (c *Controller) forward(msg any) bool {
	select {
	case c.inbox <- msg:
		return true
	case <-c.stopped:
		return false
	}
}

// drain releases handles whose dispatch result was queued after Run stopped.
func (c *Controller) drain() {
	for {
		select {
		case msg := <-c.inbox:
			if m, ok := msg.(dispatchedMsg); ok && m.handle != nil {
				c.transport.Cancel(m.handle)
			}
		default:
			return
		}
	}
}

// =============================================================================
// EVENT LOOP
// =============================================================================

func (c *Controller) process(msg any) {
	switch m := msg.(type) {
	case submitMsg:
		c.submit(m.req)
	case cancelMsg:
		c.cancel()
	case listModelsMsg:
		c.listModels()
	case modelsMsg:
		c.sink.Notify(Notification{Type: ModelList, Models: m.models})
	case dispatchedMsg:
		c.dispatched(m)
	case eventMsg:
		c.event(m)
	case closedMsg:
		if c.current(m.id) {
			c.finish(OutcomeClosed, "")
		}
	}
}

func (c *Controller) submit(req inference.PromptRequest) {
	c.abort(OutcomeSuperseded)

	dispatchCtx, cancel := context.WithCancel(c.ctx)
	c.req = req
	c.cancelDispatch = cancel
	c.startedAt = time.Now()
	c.state = inference.State{
		Active:           true,
		CurrentRequestID: req.RequestID(),
	}
	c.setPhase(Dispatching)
	c.log.Info("PROMPT_SUBMIT", "id", req.RequestID(), "model", req.Model(), "chars", len(req.Text()))

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		h, err := c.transport.Dispatch(dispatchCtx, req)
		if !c.forward(dispatchedMsg{id: req.RequestID(), handle: h, err: err}) && h != nil {
			c.transport.Cancel(h)
		}
	}()
}

func (c *Controller) dispatched(m dispatchedMsg) {
	if !c.current(m.id) || c.phase != Dispatching || c.handle != nil {
		if m.handle != nil {
			c.transport.Cancel(m.handle)
		}
		return
	}
	if m.err != nil {
		c.log.Warn("DISPATCH_FAILED", "id", m.id, "error", m.err)
		c.finish(OutcomeFailed, m.err.Error())
		return
	}

	c.handle = m.handle
	c.workers.Add(1)
	go func(h *transport.Handle) {
		defer c.workers.Done()
		for ev := range h.Events() {
			if !c.forward(eventMsg{id: h.ID(), ev: ev}) {
				return
			}
		}
		c.forward(closedMsg{id: h.ID()})
	}(m.handle)
}

func (c *Controller) event(m eventMsg) {
	if !c.current(m.id) {
		return
	}
	switch m.ev.Kind {
	case inference.EventTextDelta:
		if c.phase == Dispatching {
			c.setPhase(Streaming)
		}
		c.state.AccumulatedText += m.ev.Content
		c.publish()
		c.sink.Notify(Notification{Type: TextUpdated, Text: c.state.AccumulatedText})
	case inference.EventDone:
		c.finish(OutcomeDone, "")
	case inference.EventError:
		c.log.Warn("BACKEND_ERROR", "id", m.id, "message", m.ev.Message)
		c.finish(OutcomeError, m.ev.Message)
	}
}

func (c *Controller) cancel() {
	if c.phase == Idle {
		return
	}
	c.log.Info("PROMPT_CANCEL", "id", c.state.CurrentRequestID, "phase", c.phase.String())
	c.release()
	c.finish(OutcomeCanceled, "")
}

func (c *Controller) listModels() {
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		models, err := c.transport.ListModels(c.ctx)
		if err != nil {
			c.log.Warn("LIST_MODELS_FAILED", "error", err)
			models = []string{}
		}
		c.forward(modelsMsg{models: models})
	}()
}

// =============================================================================
// STATE HELPERS
// =============================================================================

func (c *Controller) current(id string) bool {
	return c.phase != Idle && id == c.state.CurrentRequestID
}

// release cancels the transport side of the current prompt.
func (c *Controller) release() {
	if c.handle != nil {
		c.transport.Cancel(c.handle)
		c.handle = nil
	}
	if c.cancelDispatch != nil {
		c.cancelDispatch()
		c.cancelDispatch = nil
	}
}

// abort drops the current prompt without notifying the sink.
func (c *Controller) abort(outcome Outcome) {
	if c.phase == Idle {
		return
	}
	c.log.Info("PROMPT_ABORT", "id", c.state.CurrentRequestID, "outcome", string(outcome))
	c.release()
	c.record(outcome, "")
	c.reset()
}

// finish ends the current prompt and emits streamComplete.
func (c *Controller) finish(outcome Outcome, errMsg string) {
	c.release()
	c.log.Info("PROMPT_COMPLETE",
		"id", c.state.CurrentRequestID,
		"outcome", string(outcome),
		"chars", len(c.state.AccumulatedText),
		"elapsed", time.Since(c.startedAt).Round(time.Millisecond),
	)
	c.record(outcome, errMsg)
	c.reset()
	c.sink.Notify(Notification{Type: StreamComplete})
}

// reset returns to Idle, keeping the last reply's text for State.
func (c *Controller) reset() {
	c.state.Active = false
	c.state.CurrentRequestID = ""
	c.req = inference.PromptRequest{}
	c.setPhase(Idle)
}

func (c *Controller) record(outcome Outcome, errMsg string) {
	if c.recorder == nil || c.req.IsZero() {
		return
	}
	turn := Turn{
		ID:        c.req.RequestID(),
		Prompt:    c.req.Text(),
		Model:     c.req.Model(),
		Response:  c.state.AccumulatedText,
		Outcome:   outcome,
		Error:     errMsg,
		StartedAt: c.startedAt,
		Duration:  time.Since(c.startedAt),
	}
	if err := c.recorder.RecordTurn(turn); err != nil {
		c.log.Warn("TURN_RECORD_FAILED", "id", turn.ID, "error", err)
	}
}

func (c *Controller) setPhase(p Phase) {
	c.phase = p
	c.publish()
}

func (c *Controller) publish() {
	c.snapMu.Lock()
	c.snapPhase = c.phase
	c.snapState = c.state
	c.snapMu.Unlock()
}
