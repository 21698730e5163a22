// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across pyllamaui.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, StringWidth, PadWidth: terminal column aware helpers
//   - SingleLine: whitespace collapsing for one-line listings
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	cell := util.TruncateWidth(util.SingleLine(prompt), 40)
package util
