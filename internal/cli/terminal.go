// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// isInputTerminal reports whether r is an interactive terminal.
func isInputTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width we'll use for wrapping
	MinTerminalWidth = 40
)

// terminalWidth returns the width of w, or DefaultTerminalWidth when w is
// not a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return DefaultTerminalWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// =============================================================================
// COLOR OUTPUT
// =============================================================================

// colorProfile honors NO_COLOR and drops colors when stderr is piped.
func colorProfile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" || !isTerminal(os.Stderr) {
		return termenv.Ascii
	}
	return termenv.NewOutput(os.Stderr).Profile
}

var stderrRenderer = func() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(os.Stderr)
	r.SetColorProfile(colorProfile())
	return r
}()

// Styles for messages written to stderr.
var (
	ErrorStyle  = stderrRenderer.NewStyle().Foreground(lipgloss.Color("#F43F5E")).Bold(true)
	NoticeStyle = stderrRenderer.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	DimStyle    = stderrRenderer.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A855F7")).Bold(true)
)
