// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pyllamaui/internal/inference"
	"github.com/jeranaias/pyllamaui/internal/session"
	"github.com/jeranaias/pyllamaui/internal/ui/styles"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeSession struct {
	mu        sync.Mutex
	prompts   []string
	models    []string
	cancels   int
	lists     int
	active    bool
	submitErr error
}

func (f *fakeSession) SubmitPrompt(text, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.prompts = append(f.prompts, text)
	f.models = append(f.models, model)
	f.active = true
	return nil
}

func (f *fakeSession) CancelPrompt() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeSession) ListModels() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return nil
}

func (f *fakeSession) State() inference.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return inference.State{Active: f.active}
}

func (f *fakeSession) finish() {
	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
}

type fakeSettings struct {
	model string
	theme string
}

func (s *fakeSettings) Model() string { return s.model }
func (s *fakeSettings) Theme() string { return s.theme }

func (s *fakeSettings) SetModel(model string) error {
	if model == "" {
		return errors.New("model name is required")
	}
	s.model = model
	return nil
}

func (s *fakeSettings) SetTheme(theme string) error {
	if theme != styles.ThemeDark && theme != styles.ThemeLight {
		return errors.New("theme must be dark or light")
	}
	s.theme = theme
	return nil
}

func newTestModel(t *testing.T) (Model, *fakeSession, *fakeSettings) {
	t.Helper()
	s := &fakeSession{}
	settings := &fakeSettings{model: "mistral", theme: styles.ThemeDark}
	m := New(s, settings, NewSink(), Options{RenderFPS: 1000})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model), s, settings
}

func typeAndSubmit(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	updated, cmd := updated.(Model).Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model), cmd
}

func deliver(t *testing.T, m Model, ns ...session.Notification) Model {
	t.Helper()
	updated, _ := m.Update(NotificationsMsg(ns))
	return updated.(Model)
}

// =============================================================================
// SINK
// =============================================================================

func TestSink_CoalescesTextSnapshots(t *testing.T) {
	s := NewSink()
	s.Notify(session.Notification{Type: session.TextUpdated, Text: "a"})
	s.Notify(session.Notification{Type: session.TextUpdated, Text: "ab"})
	s.Notify(session.Notification{Type: session.TextUpdated, Text: "abc"})
	s.Notify(session.Notification{Type: session.StreamComplete})
	s.Notify(session.Notification{Type: session.TextUpdated, Text: "x"})

	msg := s.Wait()()
	batch, ok := msg.(NotificationsMsg)
	require.True(t, ok)
	require.Len(t, batch, 3)
	assert.Equal(t, "abc", batch[0].Text)
	assert.Equal(t, session.StreamComplete, batch[1].Type)
	assert.Equal(t, "x", batch[2].Text)
}

func TestSink_WaitBlocksUntilNotified(t *testing.T) {
	s := NewSink()
	got := make(chan tea.Msg, 1)
	go func() { got <- s.Wait()() }()

	select {
	case <-got:
		t.Fatal("Wait returned before any notification")
	case <-time.After(20 * time.Millisecond):
	}

	s.Notify(session.Notification{Type: session.ModelList, Models: []string{"m"}})
	select {
	case msg := <-got:
		batch := msg.(NotificationsMsg)
		require.Len(t, batch, 1)
		assert.Equal(t, []string{"m"}, batch[0].Models)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return")
	}
}

// =============================================================================
// FRAME LIMITER
// =============================================================================

func TestFrameLimiter_DefersBurst(t *testing.T) {
	f := newFrameLimiter(10)
	now := time.Now()

	ok, cmd := f.admit(now)
	assert.True(t, ok)
	assert.Nil(t, cmd)

	ok, cmd = f.admit(now)
	assert.False(t, ok)
	assert.NotNil(t, cmd, "a deferred frame should be scheduled")

	ok, cmd = f.admit(now)
	assert.False(t, ok)
	assert.Nil(t, cmd, "only one frame is scheduled at a time")

	f.fired()
	ok, _ = f.admit(now.Add(time.Second))
	assert.True(t, ok)
}

func TestFrameLimiter_DefaultRate(t *testing.T) {
	f := newFrameLimiter(0)
	assert.InDelta(t, float64(DefaultFPS), float64(f.limiter.Limit()), 0.001)
}

// =============================================================================
// MODEL
// =============================================================================

func TestModel_SubmitStreamAndComplete(t *testing.T) {
	m, s, _ := newTestModel(t)

	m, _ = typeAndSubmit(t, m, "hello")
	require.Equal(t, []string{"hello"}, s.prompts)
	assert.Equal(t, []string{"mistral"}, s.models)
	assert.True(t, m.Streaming())

	m = deliver(t, m, session.Notification{Type: session.TextUpdated, Text: "Hi"})
	assert.Equal(t, "Hi", m.Reply())

	m = deliver(t, m, session.Notification{Type: session.TextUpdated, Text: "Hi there"})
	s.finish()
	m = deliver(t, m, session.Notification{Type: session.StreamComplete})

	assert.False(t, m.Streaming())
	assert.Empty(t, m.Reply())
	assert.Equal(t, []string{"hello", "Hi there"}, m.Transcript())
	assert.Contains(t, m.View(), "there")
}

func TestModel_EmptyInputIgnored(t *testing.T) {
	m, s, _ := newTestModel(t)
	m, _ = typeAndSubmit(t, m, "   ")
	assert.Empty(t, s.prompts)
	assert.False(t, m.Streaming())
}

func TestModel_SubmitError(t *testing.T) {
	m, s, _ := newTestModel(t)
	s.submitErr = errors.New("controller stopped")

	m, _ = typeAndSubmit(t, m, "hello")
	assert.False(t, m.Streaming())
	assert.Equal(t, []string{"controller stopped"}, m.Transcript())
}

func TestModel_CancelShowsStopped(t *testing.T) {
	m, s, _ := newTestModel(t)
	m, _ = typeAndSubmit(t, m, "hello")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	assert.Equal(t, 1, s.cancels)

	// A second Esc while stopping does not cancel again.
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	assert.Equal(t, 1, s.cancels)

	s.finish()
	m = deliver(t, m, session.Notification{Type: session.StreamComplete})
	assert.False(t, m.Streaming())
	assert.Equal(t, []string{"hello", "stopped"}, m.Transcript())
}

func TestModel_EmptyReply(t *testing.T) {
	m, s, _ := newTestModel(t)
	m, _ = typeAndSubmit(t, m, "hello")
	s.finish()
	m = deliver(t, m, session.Notification{Type: session.StreamComplete})
	assert.Equal(t, []string{"hello", "no response"}, m.Transcript())
}

func TestModel_SupersededReplyKept(t *testing.T) {
	m, s, _ := newTestModel(t)
	m, _ = typeAndSubmit(t, m, "first")
	m = deliver(t, m, session.Notification{Type: session.TextUpdated, Text: "partial"})

	m, _ = typeAndSubmit(t, m, "second")
	assert.Equal(t, []string{"first", "partial", "second"}, m.Transcript())

	// The stale completion leaves the panel busy while the session is.
	m = deliver(t, m, session.Notification{Type: session.StreamComplete})
	assert.True(t, m.Streaming())
	assert.Equal(t, []string{"first", "partial", "second"}, m.Transcript())

	m = deliver(t, m, session.Notification{Type: session.TextUpdated, Text: "answer"})
	s.finish()
	m = deliver(t, m, session.Notification{Type: session.StreamComplete})
	assert.False(t, m.Streaming())
	assert.Equal(t, "answer", m.Transcript()[len(m.Transcript())-1])
}

func TestModel_ModelList(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = deliver(t, m, session.Notification{Type: session.ModelList, Models: []string{"llama3", "mistral"}})
	assert.Equal(t, []string{"llama3", "mistral"}, m.Models())
	assert.Equal(t, []string{"models: llama3, mistral"}, m.Transcript())

	m = deliver(t, m, session.Notification{Type: session.ModelList})
	assert.Equal(t, "no models available", m.Transcript()[1])
}

func TestModel_SlashCommands(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, m Model, s *fakeSession, settings *fakeSettings)
	}{
		{
			name:  "show model",
			input: "/model",
			check: func(t *testing.T, m Model, _ *fakeSession, _ *fakeSettings) {
				assert.Equal(t, []string{"model: mistral"}, m.Transcript())
			},
		},
		{
			name:  "set model",
			input: "/model llama3",
			check: func(t *testing.T, m Model, _ *fakeSession, settings *fakeSettings) {
				assert.Equal(t, "llama3", settings.model)
				assert.Equal(t, []string{"model set to llama3"}, m.Transcript())
			},
		},
		{
			name:  "set theme",
			input: "/theme light",
			check: func(t *testing.T, m Model, _ *fakeSession, settings *fakeSettings) {
				assert.Equal(t, styles.ThemeLight, settings.theme)
				assert.Equal(t, styles.ThemeLight, m.theme.Name)
			},
		},
		{
			name:  "bad theme",
			input: "/theme neon",
			check: func(t *testing.T, m Model, _ *fakeSession, settings *fakeSettings) {
				assert.Equal(t, styles.ThemeDark, settings.theme)
				assert.Len(t, m.Transcript(), 1)
			},
		},
		{
			name:  "unknown",
			input: "/frobnicate",
			check: func(t *testing.T, m Model, s *fakeSession, _ *fakeSettings) {
				assert.Equal(t, []string{"unknown command /frobnicate"}, m.Transcript())
				assert.Empty(t, s.prompts)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, s, settings := newTestModel(t)
			m, _ = typeAndSubmit(t, m, tt.input)
			tt.check(t, m, s, settings)
		})
	}
}

func TestModel_ModelsCommandRequestsList(t *testing.T) {
	m, s, _ := newTestModel(t)
	_, cmd := typeAndSubmit(t, m, "/models")
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, s.lists)
}

func TestModel_QuitCancelsActiveReply(t *testing.T) {
	m, s, _ := newTestModel(t)
	m, _ = typeAndSubmit(t, m, "hello")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 1, s.cancels)
}

func TestModel_SettingsChangedAppliesTheme(t *testing.T) {
	m, _, settings := newTestModel(t)
	settings.theme = styles.ThemeLight

	updated, _ := m.Update(SettingsChangedMsg{})
	m = updated.(Model)
	assert.Equal(t, styles.ThemeLight, m.theme.Name)
}

func TestModel_View(t *testing.T) {
	s := &fakeSession{}
	m := New(s, &fakeSettings{model: "mistral", theme: styles.ThemeDark}, NewSink(), Options{})
	assert.Equal(t, "Starting...", m.View())

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	view := updated.(Model).View()
	assert.Contains(t, view, "pyllamaui")
	assert.Contains(t, view, "mistral")
	assert.Contains(t, view, "ready")
	assert.LessOrEqual(t, strings.Count(view, "\n")+1, 24)
}
