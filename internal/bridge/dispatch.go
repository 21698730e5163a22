// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/pyllamaui/internal/config"
	"github.com/jeranaias/pyllamaui/internal/session"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Session is the part of the controller the dispatcher drives.
type Session interface {
	SubmitPrompt(text, model string) error
	CancelPrompt() error
	ListModels() error
}

// Settings holds the persisted panel preferences.
type Settings interface {
	Model() string
	Theme() string
	SetModel(model string) error
	SetTheme(theme string) error
}

// =============================================================================
// CONFIG-BACKED SETTINGS
// =============================================================================

// ConfigSettings persists model and theme choices into the config file.
type ConfigSettings struct {
	mu   sync.Mutex
	cfg  *config.Config
	path string
}

// NewConfigSettings wraps cfg. Changes are saved to path; an empty path
// keeps them in memory only.
func NewConfigSettings(cfg *config.Config, path string) *ConfigSettings {
	if cfg == nil {
		cfg = config.Default()
	}
	return &ConfigSettings{cfg: cfg.Clone(), path: path}
}

// Model returns the persisted default model.
func (s *ConfigSettings) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.DefaultModel
}

// Theme returns the persisted panel theme.
func (s *ConfigSettings) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.UI.Theme
}

// SetModel stores model as the default model.
func (s *ConfigSettings) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("model name is empty")
	}
	return s.update(func(c *config.Config) { c.DefaultModel = model })
}

// SetTheme stores the panel theme.
func (s *ConfigSettings) SetTheme(theme string) error {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if theme != config.ThemeDark && theme != config.ThemeLight {
		return fmt.Errorf("unknown theme %q", theme)
	}
	return s.update(func(c *config.Config) { c.UI.Theme = theme })
}

// Apply replaces the settings with a reloaded configuration and reports
// which preferences changed.
func (s *ConfigSettings) Apply(cfg *config.Config) (modelChanged, themeChanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	modelChanged = cfg.DefaultModel != s.cfg.DefaultModel
	themeChanged = cfg.UI.Theme != s.cfg.UI.Theme
	s.cfg = cfg.Clone()
	return modelChanged, themeChanged
}

func (s *ConfigSettings) update(fn func(*config.Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	fn(next)
	if s.path != "" {
		if err := config.SaveTo(next, s.path); err != nil {
			return err
		}
	}
	s.cfg = next
	return nil
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher routes inbound commands to the session and settings. It is
// shared by the stdio bridge and the webview panel.
type Dispatcher struct {
	session  Session
	settings Settings
	log      *slog.Logger

	// broadcast, when set, receives settings changes so other clients
	// follow along.
	broadcast func(Message)
}

// NewDispatcher creates a dispatcher. broadcast may be nil.
func NewDispatcher(s Session, settings Settings, broadcast func(Message), logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		session:   s,
		settings:  settings,
		broadcast: broadcast,
		log:       logger.With("component", "dispatch"),
	}
}

// Hello sends the persisted model and theme, restoring the panel's state.
func (d *Dispatcher) Hello(reply func(Message)) {
	reply(Message{Type: TypeSetModel, Model: d.settings.Model()})
	reply(Message{Type: TypeSetTheme, Theme: d.settings.Theme()})
}

// Handle runs one command. Protocol errors are answered through reply;
// stream output arrives through the session's sink.
func (d *Dispatcher) Handle(cmd Command, reply func(Message)) {
	switch cmd.Command {
	case CmdSendPrompt:
		model := strings.TrimSpace(cmd.Model)
		if model == "" {
			model = d.settings.Model()
		}
		if err := d.session.SubmitPrompt(cmd.Text, model); err != nil {
			d.fail(cmd, err, reply)
		}

	case CmdStopPrompt:
		if err := d.session.CancelPrompt(); err != nil {
			d.fail(cmd, err, reply)
		}

	case CmdGetModelList:
		if err := d.session.ListModels(); err != nil {
			d.fail(cmd, err, reply)
		}

	case CmdSetModel:
		if err := d.settings.SetModel(cmd.Model); err != nil {
			d.fail(cmd, err, reply)
			return
		}
		d.log.Info("MODEL_SET", "model", d.settings.Model())
		d.notify(Message{Type: TypeSetModel, Model: d.settings.Model()})

	case CmdSetTheme:
		if err := d.settings.SetTheme(cmd.Theme); err != nil {
			d.fail(cmd, err, reply)
			return
		}
		d.log.Info("THEME_SET", "theme", d.settings.Theme())
		d.notify(Message{Type: TypeSetTheme, Theme: d.settings.Theme()})

	case CmdPing:
		reply(Message{Type: TypePong})

	case "":
		d.fail(cmd, errors.New("missing command"), reply)

	default:
		d.fail(cmd, fmt.Errorf("unknown command %q", cmd.Command), reply)
	}
}

// Reloaded pushes preferences that changed in a reloaded config file.
func (d *Dispatcher) Reloaded(modelChanged, themeChanged bool, reply func(Message)) {
	if modelChanged {
		reply(Message{Type: TypeSetModel, Model: d.settings.Model()})
	}
	if themeChanged {
		reply(Message{Type: TypeSetTheme, Theme: d.settings.Theme()})
	}
}

func (d *Dispatcher) notify(msg Message) {
	if d.broadcast != nil {
		d.broadcast(msg)
	}
}

func (d *Dispatcher) fail(cmd Command, err error, reply func(Message)) {
	if errors.Is(err, session.ErrStopped) {
		d.log.Warn("COMMAND_AFTER_STOP", "command", cmd.Command)
	} else {
		d.log.Warn("COMMAND_REJECTED", "command", cmd.Command, "error", err)
	}
	reply(ErrorMessage(err.Error()))
}
