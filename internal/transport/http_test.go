// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pyllamaui/internal/inference"
	"github.com/jeranaias/pyllamaui/internal/ollama"
)

func newHTTPTransport(t *testing.T, handler http.HandlerFunc) *HTTPTransport {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tr := NewHTTPTransport(ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: srv.URL}), nil)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

// writeChunks streams each chunk with a flush in between.
func writeChunks(w http.ResponseWriter, chunks ...string) {
	flusher := w.(http.Flusher)
	for _, c := range chunks {
		_, _ = io.WriteString(w, c)
		flusher.Flush()
	}
}

func TestHTTPTransport_RoundTrip(t *testing.T) {
	tr := newHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, `{"response":"He"}`+"\n", `{"resp`, `onse":"llo"}`+"\n", `{"done":true}`+"\n")
	})

	req := newRequest(t, "hi", "m1")
	h, err := tr.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.RequestID(), h.ID())

	assert.Equal(t, []inference.Event{
		inference.TextDelta("He"),
		inference.TextDelta("llo"),
		inference.Done(),
	}, collect(t, h))
}

func TestHTTPTransport_EOFWithoutDone(t *testing.T) {
	tr := newHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, `{"response":"partial"}`)
	})

	h, err := tr.Dispatch(context.Background(), newRequest(t, "hi", ""))
	require.NoError(t, err)
	assert.Equal(t, []inference.Event{
		inference.TextDelta("partial"),
		inference.Done(),
	}, collect(t, h))
}

func TestHTTPTransport_ErrorRecord(t *testing.T) {
	tr := newHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, `{"error":"out of memory"}`+"\n", `{"response":"never"}`+"\n")
	})

	h, err := tr.Dispatch(context.Background(), newRequest(t, "hi", ""))
	require.NoError(t, err)
	assert.Equal(t, []inference.Event{inference.Error("out of memory")}, collect(t, h))
}

func TestHTTPTransport_ConnectError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := NewHTTPTransport(ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: url}), nil)
	h, err := tr.Dispatch(context.Background(), newRequest(t, "hi", ""))
	require.Error(t, err)
	assert.Nil(t, h)

	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, KindConnect, terr.Kind)
	assert.True(t, ollama.IsNotRunning(err))
}

func TestHTTPTransport_ModelNotFound(t *testing.T) {
	tr := newHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model 'nope' not found, try pulling it first"}`)
	})

	h, err := tr.Dispatch(context.Background(), newRequest(t, "hi", "nope"))
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, ollama.IsModelNotFound(err))
	assert.Equal(t, "model_not_found", dispatchReason(err))
}

func TestDispatchReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ollama.ErrModelNotFound, "model_not_found"},
		{ollama.ErrTimeout, "timeout"},
		{ollama.ErrCanceled, "canceled"},
		{ollama.ErrNotRunning, "not_running"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dispatchReason(tt.err), tt.err.Error())
	}
}

func TestHTTPTransport_Cancel(t *testing.T) {
	release := make(chan struct{})
	tr := newHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, `{"response":"first"}`+"\n")
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	h, err := tr.Dispatch(context.Background(), newRequest(t, "hi", ""))
	require.NoError(t, err)
	assert.Equal(t, inference.TextDelta("first"), next(t, h))

	tr.Cancel(h)
	tr.Cancel(h)
	assert.True(t, h.Canceled())
	for _, ev := range collect(t, h) {
		assert.NotEqual(t, inference.EventDone, ev.Kind)
	}
}

func TestHTTPTransport_DispatchCancelsPrevious(t *testing.T) {
	tr := newHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(w, `{"response":"x"}`+"\n")
		<-r.Context().Done()
	})

	first, err := tr.Dispatch(context.Background(), newRequest(t, "one", ""))
	require.NoError(t, err)
	assert.Equal(t, inference.TextDelta("x"), next(t, first))

	second, err := tr.Dispatch(context.Background(), newRequest(t, "two", ""))
	require.NoError(t, err)

	assert.True(t, first.Canceled())
	collect(t, first)
	assert.False(t, second.Canceled())
	assert.Equal(t, inference.TextDelta("x"), next(t, second))
	tr.Cancel(second)
}

func TestHTTPTransport_ListModels(t *testing.T) {
	tr := newHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"models":[{"name":"llama2"},{"name":"codellama:7b"}]}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	models, err := tr.ListModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"llama2", "codellama:7b"}, models)
}

func TestHTTPTransport_Closed(t *testing.T) {
	tr := newHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {})
	require.NoError(t, tr.Close())

	_, err := tr.Dispatch(context.Background(), newRequest(t, "hi", ""))
	assert.ErrorIs(t, err, ErrClosed)
}
