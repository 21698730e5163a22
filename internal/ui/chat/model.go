// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/pyllamaui/internal/inference"
	"github.com/jeranaias/pyllamaui/internal/session"
	"github.com/jeranaias/pyllamaui/internal/ui/styles"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Session is the part of the controller the panel drives.
type Session interface {
	SubmitPrompt(text, model string) error
	CancelPrompt() error
	ListModels() error
	State() inference.State
}

// Settings holds the persisted model and theme.
type Settings interface {
	Model() string
	Theme() string
	SetModel(model string) error
	SetTheme(theme string) error
}

// SettingsChangedMsg tells the panel that the settings were changed
// outside it, for example by a config file reload.
type SettingsChangedMsg struct{}

// =============================================================================
// TRANSCRIPT
// =============================================================================

type role int

const (
	roleUser role = iota
	roleAssistant
	roleNotice
	roleError
)

type entry struct {
	role role
	text string
}

// =============================================================================
// MODEL
// =============================================================================

// Options configures the panel.
type Options struct {
	// RenderFPS caps snapshot re-renders per second (default DefaultFPS).
	RenderFPS int
	// WordWrap caps the reply wrap width; 0 wraps at the window width.
	WordWrap int
}

// Model is the Bubble Tea model for the chat panel.
type Model struct {
	session  Session
	settings Settings
	sink     *Sink

	theme *styles.Theme
	md    *styles.Markdown
	keys  KeyMap
	frame *frameLimiter
	opts  Options

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	entries   []entry
	reply     string
	streaming bool
	stopping  bool
	models    []string

	width  int
	height int
	ready  bool
}

// New creates the panel. The sink must be the one the controller notifies.
func New(s Session, settings Settings, sink *Sink, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask the model..."
	ti.CharLimit = 16 * 1024
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	theme := styles.NewTheme(settings.Theme())
	sp.Style = theme.Spinner
	ti.PromptStyle = theme.InputPrompt

	return Model{
		session:  s,
		settings: settings,
		sink:     sink,
		theme:    theme,
		md:       styles.NewMarkdown(theme.Name),
		keys:     DefaultKeyMap(),
		frame:    newFrameLimiter(opts.RenderFPS),
		opts:     opts,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
	}
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts listening for notifications and asks for the model list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.sink.Wait(),
		m.spinner.Tick,
		m.listModels(),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.streaming {
				_ = m.session.CancelPrompt()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Submit):
			return m.submit()
		case key.Matches(msg, m.keys.Cancel):
			m.stop()
			return m, nil
		case key.Matches(msg, m.keys.Clear):
			m.entries = nil
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keys.Models):
			return m, m.listModels()
		case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case NotificationsMsg:
		for _, n := range msg {
			if cmd := m.notify(n); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		cmds = append(cmds, m.sink.Wait())
		return m, tea.Batch(cmds...)

	case frameMsg:
		m.frame.fired()
		m.refresh()
		return m, nil

	case SettingsChangedMsg:
		m.applyTheme(m.settings.Theme())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// =============================================================================
// ACTIONS
// =============================================================================

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	m.input.Reset()

	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		return m.command(strings.TrimSpace(text))
	}

	if err := m.session.SubmitPrompt(text, m.settings.Model()); err != nil {
		m.addEntry(roleError, err.Error())
		return m, nil
	}

	// A newer prompt supersedes the one in flight; keep what it produced.
	if m.streaming && m.reply != "" {
		m.entries = append(m.entries, entry{role: roleAssistant, text: m.reply})
	}
	m.entries = append(m.entries, entry{role: roleUser, text: text})
	m.reply = ""
	m.streaming = true
	m.stopping = false
	m.refresh()
	return m, nil
}

func (m *Model) stop() {
	if !m.streaming || m.stopping {
		return
	}
	if err := m.session.CancelPrompt(); err != nil {
		m.addEntry(roleError, err.Error())
		return
	}
	m.stopping = true
}

func (m Model) listModels() tea.Cmd {
	return func() tea.Msg {
		_ = m.session.ListModels()
		return nil
	}
}

// command runs a slash command.
func (m Model) command(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}

	switch fields[0] {
	case "/model":
		if arg == "" {
			m.addEntry(roleNotice, "model: "+m.settings.Model())
			return m, nil
		}
		if err := m.settings.SetModel(arg); err != nil {
			m.addEntry(roleError, err.Error())
			return m, nil
		}
		m.addEntry(roleNotice, "model set to "+m.settings.Model())
	case "/models":
		return m, m.listModels()
	case "/theme":
		if err := m.settings.SetTheme(arg); err != nil {
			m.addEntry(roleError, err.Error())
			return m, nil
		}
		m.applyTheme(m.settings.Theme())
	case "/stop":
		m.stop()
	case "/clear":
		m.entries = nil
		m.refresh()
	case "/quit", "/exit":
		if m.streaming {
			_ = m.session.CancelPrompt()
		}
		return m, tea.Quit
	default:
		m.addEntry(roleError, "unknown command "+fields[0])
	}
	return m, nil
}

// notify applies one controller notification.
func (m *Model) notify(n session.Notification) tea.Cmd {
	switch n.Type {
	case session.TextUpdated:
		m.streaming = true
		m.reply = n.Text
		ok, cmd := m.frame.admit(time.Now())
		if ok {
			m.refresh()
		}
		return cmd

	case session.StreamComplete:
		if !m.streaming {
			return nil
		}
		active := m.session.State().Active
		if active && m.reply == "" && !m.stopping {
			// Completion of a request the panel already moved past.
			return nil
		}
		switch {
		case m.reply != "":
			m.entries = append(m.entries, entry{role: roleAssistant, text: m.reply})
		case !m.stopping:
			m.entries = append(m.entries, entry{role: roleNotice, text: "no response"})
		}
		if m.stopping {
			m.entries = append(m.entries, entry{role: roleNotice, text: "stopped"})
		}
		m.reply = ""
		m.stopping = false
		m.streaming = active
		m.refresh()

	case session.ModelList:
		m.models = n.Models
		if len(n.Models) == 0 {
			m.addEntry(roleNotice, "no models available")
		} else {
			m.addEntry(roleNotice, "models: "+strings.Join(n.Models, ", "))
		}
	}
	return nil
}

func (m *Model) applyTheme(name string) {
	if name == m.theme.Name {
		return
	}
	m.theme = styles.NewTheme(name)
	m.md = styles.NewMarkdown(m.theme.Name)
	m.spinner.Style = m.theme.Spinner
	m.input.PromptStyle = m.theme.InputPrompt
	m.refresh()
}

func (m *Model) addEntry(r role, text string) {
	m.entries = append(m.entries, entry{role: r, text: text})
	m.refresh()
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Streaming reports whether a reply is in progress.
func (m Model) Streaming() bool { return m.streaming }

// Reply returns the reply being streamed.
func (m Model) Reply() string { return m.reply }

// Models returns the last model list received.
func (m Model) Models() []string { return m.models }

// Transcript returns the plain text of the finished entries.
func (m Model) Transcript() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.text)
	}
	return out
}
