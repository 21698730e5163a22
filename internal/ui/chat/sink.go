// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/jeranaias/pyllamaui/internal/session"
)

// =============================================================================
// SINK
// =============================================================================

// NotificationsMsg carries the notifications queued since the last delivery.
type NotificationsMsg []session.Notification

// Sink queues controller notifications for the Bubble Tea program. Notify
// never blocks the controller: consecutive text snapshots collapse into the
// newest one while the program is busy.
type Sink struct {
	mu      sync.Mutex
	pending []session.Notification
	signal  chan struct{}
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{signal: make(chan struct{}, 1)}
}

var _ session.Sink = (*Sink)(nil)

// Notify queues n.
func (s *Sink) Notify(n session.Notification) {
	s.mu.Lock()
	last := len(s.pending) - 1
	if n.Type == session.TextUpdated && last >= 0 && s.pending[last].Type == session.TextUpdated {
		s.pending[last] = n
	} else {
		s.pending = append(s.pending, n)
	}
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Wait returns a command that blocks until notifications are queued and
// delivers them as one NotificationsMsg.
func (s *Sink) Wait() tea.Cmd {
	return func() tea.Msg {
		<-s.signal
		return NotificationsMsg(s.take())
	}
}

func (s *Sink) take() []session.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = nil
	return batch
}

// =============================================================================
// FRAME LIMITER
// =============================================================================

// DefaultFPS is used when no render rate is configured.
const DefaultFPS = 30

// frameMsg asks the model to render a deferred snapshot.
type frameMsg struct{}

// frameLimiter caps how often a streaming reply is re-rendered. Snapshots
// arriving faster than the cap are deferred to the next frame, and only
// the newest one is drawn.
type frameLimiter struct {
	limiter *rate.Limiter
	pending bool
}

func newFrameLimiter(fps int) *frameLimiter {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &frameLimiter{limiter: rate.NewLimiter(rate.Limit(fps), 1)}
}

// admit reports whether a frame may be drawn now. Otherwise it returns a
// command that fires when the next frame is due, or nil when one is
// already scheduled.
func (f *frameLimiter) admit(now time.Time) (bool, tea.Cmd) {
	if f.pending {
		return false, nil
	}
	r := f.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return true, nil
	}
	f.pending = true
	return false, tea.Tick(delay, func(time.Time) tea.Msg { return frameMsg{} })
}

// fired marks the scheduled frame as drawn.
func (f *frameLimiter) fired() {
	f.pending = false
}
