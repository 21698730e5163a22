// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme names accepted by NewTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Theme holds the styled components for the chat panel.
type Theme struct {
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style

	// ==========================================================================
	// TRANSCRIPT
	// ==========================================================================

	UserLabel      lipgloss.Style
	UserText       lipgloss.Style
	AssistantLabel lipgloss.Style
	AssistantBody  lipgloss.Style
	Notice         lipgloss.Style
	Error          lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS
	// ==========================================================================

	InputPrompt     lipgloss.Style
	StatusBar       lipgloss.Style
	StatusIdle      lipgloss.Style
	StatusStreaming lipgloss.Style
	Spinner         lipgloss.Style
	Muted           lipgloss.Style
}

// NewTheme creates the theme called name. Any other name follows the
// terminal's background.
func NewTheme(name string) *Theme {
	var dark bool
	switch name {
	case ThemeDark:
		dark = true
	case ThemeLight:
		dark = false
	default:
		dark = termenv.HasDarkBackground()
		name = ThemeLight
		if dark {
			name = ThemeDark
		}
	}

	t := &Theme{
		Name:         name,
		IsDark:       dark,
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

func (t *Theme) c(p Palette) lipgloss.Color {
	return p.Resolve(t.IsDark)
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(t.c(SurfaceDim)).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.c(Purple))

	t.HeaderModel = lipgloss.NewStyle().
		Foreground(t.c(TextSecondary)).
		Italic(true)

	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.c(Cyan))

	t.UserText = lipgloss.NewStyle().
		Foreground(t.c(UserBubbleFg)).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.c(UserBubbleBorder)).
		BorderLeft(true).
		PaddingLeft(1)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.c(Purple))

	t.AssistantBody = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.c(AssistantBubbleBorder)).
		BorderLeft(true)

	t.Notice = lipgloss.NewStyle().
		Foreground(t.c(TextMuted)).
		Italic(true)

	t.Error = lipgloss.NewStyle().
		Foreground(t.c(Rose)).
		Bold(true)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(t.c(Cyan)).
		Bold(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(t.c(SurfaceDim)).
		Foreground(t.c(TextSecondary)).
		Padding(0, 1)

	t.StatusIdle = lipgloss.NewStyle().
		Foreground(t.c(Emerald)).
		Bold(true)

	t.StatusStreaming = lipgloss.NewStyle().
		Foreground(t.c(Amber)).
		Bold(true)

	t.Spinner = lipgloss.NewStyle().
		Foreground(t.c(Amber))

	t.Muted = lipgloss.NewStyle().
		Foreground(t.c(TextMuted))
}
