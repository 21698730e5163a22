// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/pyllamaui/internal/session"
)

// =============================================================================
// PROMPT SINK
// =============================================================================

// promptSink turns controller notifications into what the line-oriented
// commands need: text snapshots, a completion signal and model lists.
type promptSink struct {
	onText func(string)

	mu     sync.Mutex
	text   string
	done   chan struct{}
	models chan []string
}

func newPromptSink(onText func(string)) *promptSink {
	return &promptSink{
		onText: onText,
		done:   make(chan struct{}, 1),
		models: make(chan []string, 1),
	}
}

var _ session.Sink = (*promptSink)(nil)

// Notify implements session.Sink.
func (s *promptSink) Notify(n session.Notification) {
	switch n.Type {
	case session.TextUpdated:
		s.mu.Lock()
		s.text = n.Text
		s.mu.Unlock()
		if s.onText != nil {
			s.onText(n.Text)
		}
	case session.StreamComplete:
		select {
		case s.done <- struct{}{}:
		default:
		}
	case session.ModelList:
		select {
		case s.models <- n.Models:
		default:
		}
	}
}

// begin clears the previous reply before a new prompt.
func (s *promptSink) begin() {
	s.mu.Lock()
	s.text = ""
	s.mu.Unlock()
	select {
	case <-s.done:
	default:
	}
}

// wait blocks until the current reply completes and returns its text.
func (s *promptSink) wait(ctx context.Context) (string, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return s.reply(), ctx.Err()
	}
	return s.reply(), nil
}

func (s *promptSink) reply() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// =============================================================================
// STREAM WRITER
// =============================================================================

// streamWriter prints the growth of successive snapshots so a streamed
// reply appears incrementally on a plain output.
type streamWriter struct {
	w io.Writer

	mu      sync.Mutex
	printed string
}

func (p *streamWriter) update(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !strings.HasPrefix(text, p.printed) {
		// Snapshots only grow within one reply; anything else starts over.
		_, _ = io.WriteString(p.w, "\n")
		p.printed = ""
	}
	_, _ = io.WriteString(p.w, text[len(p.printed):])
	p.printed = text
}

// finish ends the reply with a newline and resets for the next one.
func (p *streamWriter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed != "" && !strings.HasSuffix(p.printed, "\n") {
		_, _ = io.WriteString(p.w, "\n")
	}
	p.printed = ""
}
