// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// Palette entry with a light and a dark variant.
type Palette struct {
	Light string
	Dark  string
}

// Resolve picks the variant for a dark or light theme.
func (p Palette) Resolve(dark bool) lipgloss.Color {
	if dark {
		return lipgloss.Color(p.Dark)
	}
	return lipgloss.Color(p.Light)
}

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Purple - assistant replies, header title
var Purple = Palette{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - brand, prompt marker, user highlights
var Cyan = Palette{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - connected / idle state
var Emerald = Palette{Light: "#059669", Dark: "#34D399"}

// Amber - streaming state, warnings
var Amber = Palette{Light: "#D97706", Dark: "#FBBF24"}

// Rose - errors
var Rose = Palette{Light: "#E11D48", Dark: "#FB7185"}

// =============================================================================
// SURFACE AND TEXT
// =============================================================================

var (
	SurfaceDim    = Palette{Light: "#F5F5F5", Dark: "#181825"}
	Overlay       = Palette{Light: "#E5E5E5", Dark: "#313244"}
	TextPrimary   = Palette{Light: "#1F2937", Dark: "#CDD6F4"}
	TextSecondary = Palette{Light: "#6B7280", Dark: "#A6ADC8"}
	TextMuted     = Palette{Light: "#9CA3AF", Dark: "#6C7086"}
)

// =============================================================================
// MESSAGE COLORS
// =============================================================================

var (
	UserBubbleFg          = Palette{Light: "#1E40AF", Dark: "#E0F2FE"}
	UserBubbleBorder      = Palette{Light: "#3B82F6", Dark: "#3B82F6"}
	AssistantBubbleBorder = Palette{Light: "#C4B5FD", Dark: "#A78BFA"}
)
