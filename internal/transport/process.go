// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/pyllamaui/internal/inference"
	"github.com/jeranaias/pyllamaui/internal/stream"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// ProcessConfig describes how to launch the helper process.
type ProcessConfig struct {
	// Command is the interpreter or executable (default: python3).
	Command string
	// Args are passed before any protocol traffic (default: py/run_prompt.py).
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
}

// DefaultProcessConfig returns the stock helper invocation.
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		Command: "python3",
		Args:    []string{"py/run_prompt.py"},
	}
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

// processCommand is one line written to the helper's stdin.
type processCommand struct {
	Command string   `json:"command"`
	ID      string   `json:"id,omitempty"`
	Args    []string `json:"args"`
}

// processReply holds the routing fields of one stdout line. Stream content
// is decoded by the stream parser.
type processReply struct {
	ID     string    `json:"id"`
	Models *[]string `json:"models"`
}

// =============================================================================
// PROCESS TRANSPORT
// =============================================================================

// helper is one running instance of the helper process.
type helper struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	exited chan struct{}
}

func (p *helper) kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// ProcessTransport drives a long-lived helper process over stdin and stdout.
// The helper cannot abort a generation, so Cancel kills it and the next
// request spawns a fresh one.
type ProcessTransport struct {
	cfg ProcessConfig
	log *slog.Logger

	mu      sync.Mutex
	proc    *helper
	active  *Handle
	parser  *stream.Parser
	pending map[string]chan []string
	order   []string
	closed  bool
	wg      sync.WaitGroup
}

// NewProcessTransport creates a transport. The helper is started lazily.
func NewProcessTransport(cfg ProcessConfig, logger *slog.Logger) *ProcessTransport {
	def := DefaultProcessConfig()
	if cfg.Command == "" {
		cfg.Command = def.Command
	}
	if cfg.Args == nil {
		cfg.Args = def.Args
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessTransport{
		cfg:     cfg,
		log:     logger.With("transport", "process"),
		parser:  stream.NewParser(),
		pending: make(map[string]chan []string),
	}
}

// Dispatch sends a sendPrompt command, spawning the helper if needed.
func (t *ProcessTransport) Dispatch(ctx context.Context, req inference.PromptRequest) (*Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		t.mu.Unlock()
		return nil, &Error{Kind: KindConnect, Op: "dispatch", Err: err}
	}
	if prev := t.active; prev != nil {
		t.cancelLocked(prev)
	}

	proc, err := t.ensureLocked()
	if err != nil {
		t.mu.Unlock()
		t.log.Warn("DISPATCH_FAILED", "id", req.RequestID(), "error", err)
		return nil, &Error{Kind: KindConnect, Op: "dispatch", Err: err}
	}

	h := NewHandle(req.RequestID(), nil)
	t.active = h
	t.parser.Reset()

	err = writeCommand(proc.stdin, processCommand{
		Command: "sendPrompt",
		ID:      h.id,
		Args:    []string{req.Text(), "--model=" + req.Model(), "--stream"},
	})
	if err != nil {
		t.active = nil
		t.stopLocked(proc)
		t.mu.Unlock()
		h.Cancel()
		h.Finish()
		t.log.Warn("DISPATCH_FAILED", "id", h.id, "error", err)
		return nil, &Error{Kind: KindConnect, Op: "dispatch", Err: err}
	}
	t.mu.Unlock()

	t.log.Debug("DISPATCH", "id", h.id, "model", req.Model(), "pid", proc.cmd.Process.Pid)
	return h, nil
}

// Cancel kills the helper if h is the active stream.
func (t *ProcessTransport) Cancel(h *Handle) {
	if h == nil {
		return
	}
	t.mu.Lock()
	t.cancelLocked(h)
	t.mu.Unlock()
}

func (t *ProcessTransport) cancelLocked(h *Handle) {
	if t.active == h {
		t.active = nil
		if t.proc != nil {
			t.stopLocked(t.proc)
		}
	}
	if h.Cancel() {
		t.log.Debug("CANCEL", "id", h.id)
	}
	h.Finish()
}

// ListModels asks the helper for its model list.
func (t *ProcessTransport) ListModels(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	proc, err := t.ensureLocked()
	if err != nil {
		t.mu.Unlock()
		return nil, &Error{Kind: KindConnect, Op: "list models", Err: err}
	}

	id := uuid.New().String()
	reply := make(chan []string, 1)
	t.pending[id] = reply
	t.order = append(t.order, id)

	if err := writeCommand(proc.stdin, processCommand{Command: "getModelList", ID: id, Args: []string{}}); err != nil {
		t.dropPendingLocked(id)
		t.mu.Unlock()
		return nil, &Error{Kind: KindConnect, Op: "list models", Err: err}
	}
	t.mu.Unlock()

	select {
	case models, ok := <-reply:
		if !ok {
			return nil, &Error{Kind: KindProcessExit, Op: "list models", Err: errors.New("helper exited before replying")}
		}
		return models, nil
	case <-ctx.Done():
		t.mu.Lock()
		t.dropPendingLocked(id)
		t.mu.Unlock()
		return nil, &Error{Kind: KindConnect, Op: "list models", Err: ctx.Err()}
	}
}

// Close kills the helper and waits for its reader to exit.
func (t *ProcessTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	if t.active != nil {
		t.cancelLocked(t.active)
	}
	if t.proc != nil {
		t.stopLocked(t.proc)
	}
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

// =============================================================================
// PROCESS LIFECYCLE
// =============================================================================

// ensureLocked returns the running helper, starting one if necessary.
func (t *ProcessTransport) ensureLocked() (*helper, error) {
	if t.proc != nil {
		return t.proc, nil
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.cfg.Dir
	if len(t.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), t.cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", t.cfg.Command, err)
	}

	proc := &helper{cmd: cmd, stdin: stdin, exited: make(chan struct{})}
	t.proc = proc
	t.log.Info("HELPER_START", "command", t.cfg.Command, "args", t.cfg.Args, "pid", cmd.Process.Pid)

	t.wg.Add(2)
	go t.logStderr(proc, stderr)
	go t.readLoop(proc, stdout)
	return proc, nil
}

// stopLocked kills proc and detaches it. Its reader finishes the cleanup.
func (t *ProcessTransport) stopLocked(proc *helper) {
	if t.proc == proc {
		t.proc = nil
	}
	_ = proc.stdin.Close()
	proc.kill()
}

// readLoop routes helper output until the process exits. A line longer
// than stream.MaxRecordSize is discarded and reading carries on.
func (t *ProcessTransport) readLoop(proc *helper, stdout io.Reader) {
	defer t.wg.Done()

	reader := bufio.NewReaderSize(stdout, 64*1024)
	var line []byte
	oversized := false
	for {
		chunk, err := reader.ReadSlice('\n')
		if !oversized {
			line = append(line, chunk...)
			if len(line) > stream.MaxRecordSize {
				oversized = true
				line = line[:0]
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if oversized {
			t.log.Warn("HELPER_RECORD_DROPPED", "pid", proc.cmd.Process.Pid, "limit", stream.MaxRecordSize)
		} else if trimmed := bytes.TrimRight(line, "\r\n"); len(trimmed) > 0 {
			t.route(proc, trimmed)
		}
		line = line[:0]
		oversized = false

		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.log.Warn("HELPER_READ_FAILED", "pid", proc.cmd.Process.Pid, "error", err)
			}
			break
		}
	}

	waitErr := proc.cmd.Wait()
	close(proc.exited)
	t.exited(proc, waitErr)
}

// route handles one stdout line from proc.
func (t *ProcessTransport) route(proc *helper, line []byte) {
	var reply processReply
	if err := json.Unmarshal(line, &reply); err == nil && reply.Models != nil {
		t.resolveModels(reply.ID, *reply.Models)
		return
	}

	t.mu.Lock()
	h := t.active
	if h == nil || t.proc != proc || (reply.ID != "" && reply.ID != h.id) {
		t.mu.Unlock()
		return
	}
	record := make([]byte, len(line)+1)
	copy(record, line)
	record[len(line)] = '\n'
	events := t.parser.Feed(record)
	for _, ev := range events {
		if ev.Kind == inference.EventError {
			t.log.Warn("HELPER_ERROR", "id", h.id, "message", ev.Message)
		}
	}
	if t.parser.Finished() {
		t.active = nil
	}
	t.mu.Unlock()

	h.deliver(events)
}

// resolveModels answers the model request with the given id, or the oldest
// outstanding one when the helper does not echo ids.
func (t *ProcessTransport) resolveModels(id string, models []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == "" && len(t.order) > 0 {
		id = t.order[0]
	}
	reply, ok := t.pending[id]
	if !ok {
		return
	}
	t.dropPendingLocked(id)
	reply <- models
}

func (t *ProcessTransport) dropPendingLocked(id string) {
	delete(t.pending, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// exited cleans up after proc terminates. An active stream ends with Done.
func (t *ProcessTransport) exited(proc *helper, waitErr error) {
	t.mu.Lock()
	current := t.proc == proc
	if current {
		t.proc = nil
	}
	var h *Handle
	if current && t.active != nil {
		h = t.active
		t.active = nil
	}
	if current {
		for id, reply := range t.pending {
			close(reply)
			delete(t.pending, id)
		}
		t.order = nil
	}
	t.mu.Unlock()

	if h == nil {
		t.log.Debug("HELPER_EXIT", "pid", proc.cmd.Process.Pid, "error", waitErr)
		return
	}

	exitErr := &Error{Kind: KindProcessExit, Op: "stream", Err: waitErr}
	t.log.Warn("HELPER_EXIT", "id", h.id, "pid", proc.cmd.Process.Pid, "error", exitErr)
	h.deliver([]inference.Event{inference.Done()})
	h.Finish()
}

// logStderr forwards the helper's stderr to the log.
func (t *ProcessTransport) logStderr(proc *helper, stderr io.Reader) {
	defer t.wg.Done()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		t.log.Warn("HELPER_STDERR", "pid", proc.cmd.Process.Pid, "line", scanner.Text())
	}
}

func writeCommand(w io.Writer, cmd processCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
