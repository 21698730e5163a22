// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jeranaias/pyllamaui/internal/session"
)

// MaxLineSize bounds one inbound command line.
const MaxLineSize = 1024 * 1024

// Bridge speaks line-delimited JSON with the host editor. It is the
// controller's Sink: every notification becomes one output line.
type Bridge struct {
	in  io.Reader
	log *slog.Logger

	mu  sync.Mutex
	out io.Writer
	enc *json.Encoder
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// New creates a bridge reading commands from in and writing messages to out.
func New(in io.Reader, out io.Writer, opts ...Option) *Bridge {
	b := &Bridge{
		in:  in,
		out: out,
		enc: json.NewEncoder(out),
		log: slog.Default(),
	}
	b.enc.SetEscapeHTML(false)
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "bridge")
	return b
}

var _ session.Sink = (*Bridge)(nil)

// Notify writes a controller notification.
func (b *Bridge) Notify(n session.Notification) {
	b.Send(FromNotification(n))
}

// Send writes one message as a single line. Concurrent calls never
// interleave.
func (b *Bridge) Send(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enc.Encode(msg); err != nil {
		b.log.Warn("WRITE_FAILED", "type", msg.Type, "error", err)
	}
}

// Serve replays the persisted settings, then reads commands until the
// input ends or ctx is canceled. It returns nil on a clean EOF. On
// cancellation the input is closed when it is an io.Closer so the reader
// goroutine exits; otherwise the caller must close it.
func (b *Bridge) Serve(ctx context.Context, d *Dispatcher) error {
	d.Hello(b.Send)

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(b.in)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	b.log.Info("BRIDGE_START")
	for {
		select {
		case <-ctx.Done():
			if c, ok := b.in.(io.Closer); ok {
				_ = c.Close()
			}
			return ctx.Err()
		case line := <-lines:
			b.handleLine(line, d)
		case err := <-readErr:
			if errors.Is(err, bufio.ErrTooLong) {
				b.Send(ErrorMessage(fmt.Sprintf("request too large (max %d bytes)", MaxLineSize)))
				return fmt.Errorf("read command: %w", err)
			}
			if err != nil {
				return fmt.Errorf("read command: %w", err)
			}
			b.log.Info("BRIDGE_EOF")
			return nil
		}
	}
}

func (b *Bridge) handleLine(line []byte, d *Dispatcher) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		b.log.Warn("INVALID_JSON", "error", err, "bytes", len(line))
		b.Send(ErrorMessage("invalid JSON"))
		return
	}
	b.log.Debug("COMMAND", "command", cmd.Command)
	d.Handle(cmd, b.Send)
}
