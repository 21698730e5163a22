// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// Markdown renders model replies for the terminal. It keeps one glamour
// renderer per wrap width and is safe for concurrent use.
type Markdown struct {
	style string

	mu       sync.Mutex
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdown creates a renderer using glamour's standard style for the
// given theme name.
func NewMarkdown(theme string) *Markdown {
	style := "dark"
	if theme == ThemeLight {
		style = "light"
	}
	return &Markdown{style: style}
}

// Render converts markdown to styled terminal text wrapped at width. On a
// renderer error the input is returned unchanged.
func (m *Markdown) Render(content string, width int) string {
	if width < 20 {
		width = 20
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renderer == nil || m.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		m.renderer = r
		m.width = width
	}

	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}
