// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colours, lipgloss styles, and markdown renderer
for the terminal chat panel.

The panel theme is explicit ("dark" or "light", persisted by setTheme), so
each palette entry holds both variants and Theme resolves them once:

	theme := styles.NewTheme(config.ThemeDark)
	title := theme.HeaderTitle.Render("pyllamaui")

Replies are rendered with glamour through a Markdown renderer that caches
one glamour instance per width:

	md := styles.NewMarkdown(theme.Name)
	out := md.Render(reply, width)
*/
package styles
