// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the terminal chat panel.
//
// The Model is a Bubble Tea program over the session controller: the Sink
// feeds controller notifications into the program, text snapshots are
// re-rendered with glamour at most render_fps times a second, and key
// presses become SubmitPrompt, CancelPrompt and ListModels calls.
//
// Slash commands typed into the input:
//
//	/model <name>   switch (and persist) the model
//	/models         ask the backend for its models
//	/theme <name>   switch (and persist) the theme
//	/clear          clear the transcript
//	/quit           exit
package chat
