// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/pyllamaui/internal/util"
)

// headerHeight, statusHeight and inputHeight are the fixed rows around the
// transcript viewport.
const (
	headerHeight = 1
	statusHeight = 1
	inputHeight  = 1
)

// resize fits the layout to a new window size.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - lipgloss.Width(m.input.Prompt) - 1

	vh := height - headerHeight - statusHeight - inputHeight
	if vh < 1 {
		vh = 1
	}
	m.viewport.Width = width
	m.viewport.Height = vh
	m.ready = true
	m.refresh()
}

// wrapWidth is the width replies are wrapped to.
func (m *Model) wrapWidth() int {
	w := m.width - 2
	if m.opts.WordWrap > 0 && m.opts.WordWrap < w {
		w = m.opts.WordWrap
	}
	return w
}

// refresh rebuilds the transcript and keeps the view pinned to the bottom
// when it already was.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if atBottom || m.streaming {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderTranscript() string {
	var sb strings.Builder
	for _, e := range m.entries {
		sb.WriteString(m.renderEntry(e))
		sb.WriteString("\n\n")
	}
	if m.streaming && m.reply != "" {
		sb.WriteString(m.renderEntry(entry{role: roleAssistant, text: m.reply}))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *Model) renderEntry(e entry) string {
	width := m.wrapWidth()
	switch e.role {
	case roleUser:
		return m.theme.UserLabel.Render("You") + "\n" +
			m.theme.UserText.Width(width).Render(e.text)
	case roleAssistant:
		return m.theme.AssistantLabel.Render("Assistant") + "\n" +
			m.theme.AssistantBody.Render(m.md.Render(e.text, width))
	case roleError:
		return m.theme.Error.Render("error: " + e.text)
	default:
		return m.theme.Notice.Render(e.text)
	}
}

// View renders the panel.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderStatus(),
		m.input.View(),
	)
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("pyllamaui")
	model := m.theme.HeaderModel.Render(m.settings.Model())
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(model) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(title + strings.Repeat(" ", gap) + model)
}

func (m Model) renderStatus() string {
	var state string
	switch {
	case m.stopping:
		state = m.theme.StatusStreaming.Render("stopping")
	case m.streaming:
		state = m.spinner.View() + " " + m.theme.StatusStreaming.Render("streaming")
	default:
		state = m.theme.StatusIdle.Render("ready")
	}

	var help []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	room := m.width - lipgloss.Width(state) - 2
	if room <= 0 {
		return m.theme.StatusBar.Width(m.width).Render(state)
	}
	hint := m.theme.Muted.Render(util.TruncateWidth(strings.Join(help, "  "), room))
	return m.theme.StatusBar.Width(m.width).Render(state + "  " + hint)
}
