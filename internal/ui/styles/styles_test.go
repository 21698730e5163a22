// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestPalette_Resolve(t *testing.T) {
	p := Palette{Light: "#111111", Dark: "#EEEEEE"}
	assert.Equal(t, lipgloss.Color("#EEEEEE"), p.Resolve(true))
	assert.Equal(t, lipgloss.Color("#111111"), p.Resolve(false))
}

func TestNewTheme_Explicit(t *testing.T) {
	dark := NewTheme(ThemeDark)
	assert.Equal(t, ThemeDark, dark.Name)
	assert.True(t, dark.IsDark)
	assert.Equal(t, Purple.Resolve(true), dark.HeaderTitle.GetForeground())

	light := NewTheme(ThemeLight)
	assert.Equal(t, ThemeLight, light.Name)
	assert.False(t, light.IsDark)
	assert.Equal(t, Purple.Resolve(false), light.HeaderTitle.GetForeground())
}

func TestNewTheme_Auto(t *testing.T) {
	theme := NewTheme("")
	assert.Contains(t, []string{ThemeDark, ThemeLight}, theme.Name)
	assert.Equal(t, theme.Name == ThemeDark, theme.IsDark)
}

func TestMarkdown_Render(t *testing.T) {
	md := NewMarkdown(ThemeDark)

	out := md.Render("# Heading\n\nSome **bold** text.", 60)
	assert.Contains(t, out, "Heading")
	assert.Contains(t, out, "bold")
	assert.NotContains(t, out, "**")
	assert.False(t, strings.HasPrefix(out, "\n"))
}

func TestMarkdown_WrapsToWidth(t *testing.T) {
	md := NewMarkdown(ThemeLight)
	text := strings.Repeat("word ", 40)

	narrow := md.Render(text, 30)
	wide := md.Render(text, 120)
	assert.Greater(t, strings.Count(narrow, "\n"), strings.Count(wide, "\n"))
}
