// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/jeranaias/pyllamaui/internal/inference"
	"github.com/jeranaias/pyllamaui/internal/ollama"
	"github.com/jeranaias/pyllamaui/internal/stream"
)

// readChunkSize is the body read size for HTTP streams.
const readChunkSize = 32 * 1024

// HTTPTransport streams generations from an Ollama server.
type HTTPTransport struct {
	client *ollama.Client
	log    *slog.Logger

	mu     sync.Mutex
	active *Handle
	closed bool
	wg     sync.WaitGroup
}

// NewHTTPTransport creates a transport over an Ollama client.
func NewHTTPTransport(client *ollama.Client, logger *slog.Logger) *HTTPTransport {
	if client == nil {
		client = ollama.NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		client: client,
		log:    logger.With("transport", "http"),
	}
}

// Dispatch posts the prompt to /api/generate and starts streaming its body.
func (t *HTTPTransport) Dispatch(ctx context.Context, req inference.PromptRequest) (*Handle, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	h := NewHandle(req.RequestID(), cancel)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	// A dispatch superseded before it got here must not replace the newer one.
	if err := ctx.Err(); err != nil {
		t.mu.Unlock()
		cancel()
		return nil, &Error{Kind: KindConnect, Op: "dispatch", Err: err}
	}
	prev := t.active
	t.active = h
	t.mu.Unlock()

	if prev != nil {
		t.Cancel(prev)
	}

	body, err := t.client.GenerateStream(streamCtx, ollama.GenerateRequest{
		Model:  req.Model(),
		Prompt: req.Text(),
	})
	if err != nil {
		t.release(h)
		h.Cancel()
		h.Finish()
		reason := dispatchReason(err)
		if reason == "canceled" {
			t.log.Debug("DISPATCH_CANCELED", "id", h.id)
		} else {
			t.log.Warn("DISPATCH_FAILED", "id", h.id, "model", req.Model(), "reason", reason, "error", err)
		}
		return nil, &Error{Kind: KindConnect, Op: "dispatch", Err: err}
	}

	t.log.Debug("DISPATCH", "id", h.id, "model", req.Model())
	t.wg.Add(1)
	go t.pump(h, body)
	return h, nil
}

// dispatchReason names the kind of failure GenerateStream returned.
func dispatchReason(err error) string {
	switch {
	case ollama.IsModelNotFound(err):
		return "model_not_found"
	case ollama.IsTimeout(err):
		return "timeout"
	case ollama.IsCanceled(err):
		return "canceled"
	case ollama.IsNotRunning(err):
		return "not_running"
	default:
		return "error"
	}
}

// pump reads the response body into the handle until it ends.
func (t *HTTPTransport) pump(h *Handle, body io.ReadCloser) {
	defer t.wg.Done()
	defer t.release(h)
	defer h.Finish()
	defer body.Close()

	parser := stream.NewParser()
	defer func() {
		t.log.Debug("STREAM_END",
			"id", h.id,
			"deltas", parser.Deltas(),
			"dropped", parser.Dropped(),
			"canceled", h.Canceled(),
			"tokens_per_sec", parser.Stats().TokensPerSecond(),
		)
	}()

	buf := make([]byte, readChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 && !h.deliver(parser.Feed(buf[:n])) {
			return
		}
		if err == nil {
			continue
		}
		if h.Canceled() {
			return
		}
		if !errors.Is(err, io.EOF) {
			t.log.Warn("STREAM_READ_FAILED", "id", h.id, "error", err)
		}
		if !h.deliver(parser.Flush()) {
			return
		}
		// The server closed the body without a done record.
		h.deliver([]inference.Event{inference.Done()})
		return
	}
}

// Cancel aborts the request behind h.
func (t *HTTPTransport) Cancel(h *Handle) {
	if h == nil {
		return
	}
	if h.Cancel() {
		t.log.Debug("CANCEL", "id", h.id)
	}
	t.release(h)
}

// release forgets h if it is still the active handle.
func (t *HTTPTransport) release(h *Handle) {
	t.mu.Lock()
	if t.active == h {
		t.active = nil
	}
	t.mu.Unlock()
}

// ListModels returns the names of the installed models.
func (t *HTTPTransport) ListModels(ctx context.Context) ([]string, error) {
	models, err := t.client.ListModels(ctx)
	if err != nil {
		return nil, &Error{Kind: KindConnect, Op: "list models", Err: err}
	}
	return ollama.ModelNames(models), nil
}

// Close cancels the open stream and waits for its reader to exit.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	active := t.active
	t.mu.Unlock()

	t.Cancel(active)
	t.wg.Wait()
	return nil
}
