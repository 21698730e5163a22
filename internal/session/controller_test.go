// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pyllamaui/internal/inference"
	"github.com/jeranaias/pyllamaui/internal/stream"
	"github.com/jeranaias/pyllamaui/internal/transport"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeStream struct {
	req    inference.PromptRequest
	handle *transport.Handle
}

func (s *fakeStream) send(t *testing.T, events ...inference.Event) {
	t.Helper()
	for _, ev := range events {
		require.True(t, s.handle.Send(ev), "send %v", ev)
	}
}

type fakeTransport struct {
	mu    sync.Mutex
	calls []string

	dispatched  chan *fakeStream
	dispatchErr error
	block       bool

	models    []string
	modelsErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{dispatched: make(chan *fakeStream, 16)}
}

func (f *fakeTransport) log(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) Dispatch(ctx context.Context, req inference.PromptRequest) (*transport.Handle, error) {
	f.log("dispatch:" + req.Text())
	if f.block {
		<-ctx.Done()
		return nil, &transport.Error{Kind: transport.KindConnect, Op: "dispatch", Err: ctx.Err()}
	}
	if f.dispatchErr != nil {
		return nil, f.dispatchErr
	}
	s := &fakeStream{req: req}
	s.handle = transport.NewHandle(req.RequestID(), func() { f.log("cancel:" + req.Text()) })
	f.dispatched <- s
	return s.handle, nil
}

func (f *fakeTransport) Cancel(h *transport.Handle) {
	if h == nil {
		return
	}
	h.Cancel()
	h.Finish()
}

func (f *fakeTransport) ListModels(ctx context.Context) ([]string, error) {
	return f.models, f.modelsErr
}

func (f *fakeTransport) Close() error { return nil }

type recordingSink struct {
	ch chan Notification
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan Notification, 256)}
}

func (s *recordingSink) Notify(n Notification) { s.ch <- n }

func (s *recordingSink) expect(t *testing.T) Notification {
	t.Helper()
	select {
	case n := <-s.ch:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func (s *recordingSink) expectNone(t *testing.T) {
	t.Helper()
	select {
	case n := <-s.ch:
		t.Fatalf("unexpected notification %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

type memoryRecorder struct {
	mu    sync.Mutex
	turns []Turn
}

func (r *memoryRecorder) RecordTurn(t Turn) error {
	r.mu.Lock()
	r.turns = append(r.turns, t)
	r.mu.Unlock()
	return nil
}

func (r *memoryRecorder) Turns() []Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Turn(nil), r.turns...)
}

func startController(t *testing.T, tr transport.Transport, opts ...Option) (*Controller, *recordingSink) {
	t.Helper()
	sink := newRecordingSink()
	c := New(tr, sink, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c, sink
}

func waitDispatch(t *testing.T, f *fakeTransport) *fakeStream {
	t.Helper()
	select {
	case s := <-f.dispatched:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return nil
	}
}

// =============================================================================
// TESTS
// =============================================================================

func TestController_RoundTrip(t *testing.T) {
	tr := newFakeTransport()
	c, sink := startController(t, tr)

	require.NoError(t, c.SubmitPrompt("hi", "m1"))
	s := waitDispatch(t, tr)
	assert.Equal(t, "hi", s.req.Text())
	assert.Equal(t, "m1", s.req.Model())

	parser := stream.NewParser()
	s.send(t, parser.Feed([]byte("{\"response\":\"He\"}\n{\"response\":\"llo\"}\n{\"done\":true}\n"))...)

	assert.Equal(t, Notification{Type: TextUpdated, Text: "He"}, sink.expect(t))
	assert.Equal(t, Notification{Type: TextUpdated, Text: "Hello"}, sink.expect(t))
	assert.Equal(t, Notification{Type: StreamComplete}, sink.expect(t))
	sink.expectNone(t)

	state := c.State()
	assert.False(t, state.Active)
	assert.Empty(t, state.CurrentRequestID)
	assert.Equal(t, "Hello", state.AccumulatedText)
	assert.Equal(t, Idle, c.Phase())
}

func TestController_SnapshotIsConcatenationOfDeltas(t *testing.T) {
	tr := newFakeTransport()
	c, sink := startController(t, tr)

	deltas := []string{"The ", "quick ", "", "brown", " fox ", "**jumps**", "\n", "over ", "äöü", " 🦊"}
	require.NoError(t, c.SubmitPrompt("story", ""))
	s := waitDispatch(t, tr)
	assert.Equal(t, inference.DefaultModel, s.req.Model())

	var want strings.Builder
	var last string
	for _, d := range deltas {
		s.send(t, inference.TextDelta(d))
		want.WriteString(d)
		n := sink.expect(t)
		require.Equal(t, TextUpdated, n.Type)
		assert.Equal(t, want.String(), n.Text)
		last = n.Text
	}
	s.send(t, inference.Done())
	assert.Equal(t, StreamComplete, sink.expect(t).Type)

	assert.Equal(t, strings.Join(deltas, ""), last)
	assert.Equal(t, last, c.State().AccumulatedText)
}

func TestController_SubmitWhileStreamingCancelsFirst(t *testing.T) {
	tr := newFakeTransport()
	c, sink := startController(t, tr)

	require.NoError(t, c.SubmitPrompt("one", ""))
	first := waitDispatch(t, tr)
	first.send(t, inference.TextDelta("partial"))
	assert.Equal(t, "partial", sink.expect(t).Text)
	require.Equal(t, Streaming, c.Phase())

	require.NoError(t, c.SubmitPrompt("two", ""))
	second := waitDispatch(t, tr)

	assert.Equal(t, []string{"dispatch:one", "cancel:one", "dispatch:two"}, tr.Calls())
	assert.True(t, first.handle.Canceled())
	assert.False(t, first.handle.Send(inference.TextDelta("late")))

	// The new prompt starts from an empty transcript.
	second.send(t, inference.TextDelta("fresh"), inference.Done())
	assert.Equal(t, Notification{Type: TextUpdated, Text: "fresh"}, sink.expect(t))
	assert.Equal(t, Notification{Type: StreamComplete}, sink.expect(t))
	sink.expectNone(t)
}

func TestController_CancelWhenIdleIsNoop(t *testing.T) {
	tr := newFakeTransport()
	c, sink := startController(t, tr)

	require.NoError(t, c.CancelPrompt())
	require.NoError(t, c.CancelPrompt())
	sink.expectNone(t)
	assert.Empty(t, tr.Calls())
	assert.Equal(t, Idle, c.Phase())
}

func TestController_CancelWhileStreaming(t *testing.T) {
	tr := newFakeTransport()
	rec := &memoryRecorder{}
	c, sink := startController(t, tr, WithRecorder(rec))

	require.NoError(t, c.SubmitPrompt("hi", ""))
	s := waitDispatch(t, tr)
	s.send(t, inference.TextDelta("Hel"))
	assert.Equal(t, TextUpdated, sink.expect(t).Type)

	require.NoError(t, c.CancelPrompt())
	assert.Equal(t, Notification{Type: StreamComplete}, sink.expect(t))
	assert.Equal(t, []string{"dispatch:hi", "cancel:hi"}, tr.Calls())
	assert.False(t, s.handle.Send(inference.TextDelta("lo")))
	sink.expectNone(t)

	assert.False(t, c.State().Active)
	require.Len(t, rec.Turns(), 1)
	assert.Equal(t, OutcomeCanceled, rec.Turns()[0].Outcome)
	assert.Equal(t, "Hel", rec.Turns()[0].Response)
}

func TestController_CancelWhileDispatching(t *testing.T) {
	tr := newFakeTransport()
	tr.block = true
	c, sink := startController(t, tr)

	require.NoError(t, c.SubmitPrompt("hi", ""))
	require.Eventually(t, func() bool { return len(tr.Calls()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, Dispatching, c.Phase())

	require.NoError(t, c.CancelPrompt())
	assert.Equal(t, Notification{Type: StreamComplete}, sink.expect(t))
	sink.expectNone(t)
	assert.Equal(t, Idle, c.Phase())
}

func TestController_DispatchFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.dispatchErr = &transport.Error{Kind: transport.KindConnect, Op: "dispatch", Err: errors.New("connection refused")}
	rec := &memoryRecorder{}
	c, sink := startController(t, tr, WithRecorder(rec))

	require.NoError(t, c.SubmitPrompt("hi", ""))
	assert.Equal(t, Notification{Type: StreamComplete}, sink.expect(t))
	sink.expectNone(t)
	assert.Empty(t, c.State().AccumulatedText)

	require.Len(t, rec.Turns(), 1)
	assert.Equal(t, OutcomeFailed, rec.Turns()[0].Outcome)
	assert.Contains(t, rec.Turns()[0].Error, "connection refused")
}

func TestController_ErrorEndsStream(t *testing.T) {
	tr := newFakeTransport()
	rec := &memoryRecorder{}
	c, sink := startController(t, tr, WithRecorder(rec))

	require.NoError(t, c.SubmitPrompt("hi", "m1"))
	s := waitDispatch(t, tr)
	s.send(t, inference.TextDelta("So"), inference.Error("out of memory"))

	assert.Equal(t, Notification{Type: TextUpdated, Text: "So"}, sink.expect(t))
	assert.Equal(t, Notification{Type: StreamComplete}, sink.expect(t))
	sink.expectNone(t)
	assert.Equal(t, Idle, c.Phase())

	turns := rec.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, OutcomeError, turns[0].Outcome)
	assert.Equal(t, "out of memory", turns[0].Error)
	assert.Equal(t, "m1", turns[0].Model)
	assert.Equal(t, "hi", turns[0].Prompt)
}

func TestController_ChannelCloseEndsStream(t *testing.T) {
	tr := newFakeTransport()
	c, sink := startController(t, tr)

	require.NoError(t, c.SubmitPrompt("hi", ""))
	s := waitDispatch(t, tr)
	s.send(t, inference.TextDelta("x"))
	s.handle.Finish()

	assert.Equal(t, TextUpdated, sink.expect(t).Type)
	assert.Equal(t, Notification{Type: StreamComplete}, sink.expect(t))
	sink.expectNone(t)
	assert.Equal(t, Idle, c.Phase())
}

func TestController_DoneAfterDoneIsIgnored(t *testing.T) {
	tr := newFakeTransport()
	c, sink := startController(t, tr)

	require.NoError(t, c.SubmitPrompt("hi", ""))
	s := waitDispatch(t, tr)
	s.send(t, inference.Done())
	s.handle.Send(inference.Done())

	assert.Equal(t, Notification{Type: StreamComplete}, sink.expect(t))
	sink.expectNone(t)
	assert.Equal(t, Idle, c.Phase())
}

func TestController_EmptyPrompt(t *testing.T) {
	tr := newFakeTransport()
	c, sink := startController(t, tr)

	assert.ErrorIs(t, c.SubmitPrompt("   \n\t", "m1"), ErrEmptyPrompt)
	sink.expectNone(t)
	assert.Empty(t, tr.Calls())
}

func TestController_ListModels(t *testing.T) {
	tr := newFakeTransport()
	tr.models = []string{"llama2", "mistral"}
	c, sink := startController(t, tr)

	require.NoError(t, c.ListModels())
	assert.Equal(t, Notification{Type: ModelList, Models: []string{"llama2", "mistral"}}, sink.expect(t))
}

func TestController_ListModelsFailureYieldsEmptyList(t *testing.T) {
	tr := newFakeTransport()
	tr.modelsErr = errors.New("backend down")
	c, sink := startController(t, tr)

	require.NoError(t, c.ListModels())
	n := sink.expect(t)
	assert.Equal(t, ModelList, n.Type)
	assert.NotNil(t, n.Models)
	assert.Empty(t, n.Models)
}

func TestController_RecordsCompletedTurn(t *testing.T) {
	tr := newFakeTransport()
	rec := &memoryRecorder{}
	c, sink := startController(t, tr, WithRecorder(rec))

	require.NoError(t, c.SubmitPrompt("hi", "m1"))
	s := waitDispatch(t, tr)
	s.send(t, inference.TextDelta("Hello"), inference.Done())
	sink.expect(t)
	sink.expect(t)

	turns := rec.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, s.req.RequestID(), turns[0].ID)
	assert.Equal(t, OutcomeDone, turns[0].Outcome)
	assert.Equal(t, "Hello", turns[0].Response)
	assert.False(t, turns[0].StartedAt.IsZero())
}

func TestController_StateInvariant(t *testing.T) {
	tr := newFakeTransport()
	c, sink := startController(t, tr)

	require.NoError(t, c.SubmitPrompt("hi", ""))
	s := waitDispatch(t, tr)
	s.send(t, inference.TextDelta("a"))
	sink.expect(t)

	state := c.State()
	assert.True(t, state.Active)
	assert.Equal(t, s.req.RequestID(), state.CurrentRequestID)

	s.send(t, inference.Done())
	sink.expect(t)
	state = c.State()
	assert.False(t, state.Active)
	assert.Empty(t, state.CurrentRequestID)
}

func TestController_Stopped(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.NoError(t, c.SubmitPrompt("hi", ""))
	s := waitDispatch(t, tr)

	cancel()
	require.NoError(t, <-done)
	assert.True(t, s.handle.Canceled())

	assert.ErrorIs(t, c.SubmitPrompt("again", ""), ErrStopped)
	assert.ErrorIs(t, c.CancelPrompt(), ErrStopped)
	assert.ErrorIs(t, c.Run(context.Background()), ErrStopped)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "dispatching", Dispatching.String())
	assert.Equal(t, "streaming", Streaming.String())
}
