// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/pyllamaui/internal/session"
	"github.com/jeranaias/pyllamaui/internal/util"
)

// =============================================================================
// TURN LIST FORMATTING
// =============================================================================

const (
	idColumn      = 8
	timeColumn    = 16
	modelColumn   = 14
	outcomeColumn = 10
	minPreview    = 20
)

// FormatTurnList renders turns as a table fitted to width columns.
func FormatTurnList(turns []session.Turn, width int) string {
	if len(turns) == 0 {
		return "No turns recorded."
	}

	preview := width - idColumn - timeColumn - modelColumn - outcomeColumn - 4
	if preview < minPreview {
		preview = minPreview
	}
	rule := strings.Repeat("-", idColumn+timeColumn+modelColumn+outcomeColumn+4+preview)

	var sb strings.Builder
	sb.WriteString(rule + "\n")
	sb.WriteString(util.PadWidth("ID", idColumn) + " " +
		util.PadWidth("Started", timeColumn) + " " +
		util.PadWidth("Model", modelColumn) + " " +
		util.PadWidth("Outcome", outcomeColumn) + " Prompt\n")
	sb.WriteString(rule + "\n")

	for _, t := range turns {
		id := t.ID
		if len(id) > idColumn {
			id = id[:idColumn]
		}
		sb.WriteString(util.PadWidth(id, idColumn) + " " +
			util.PadWidth(t.StartedAt.Format("2006-01-02 15:04"), timeColumn) + " " +
			util.PadWidth(util.TruncateWidth(t.Model, modelColumn), modelColumn) + " " +
			util.PadWidth(string(t.Outcome), outcomeColumn) + " " +
			util.TruncateWidth(util.SingleLine(t.Prompt), preview) + "\n")
	}
	return sb.String()
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders turns oldest first as a markdown transcript.
func ExportMarkdown(turns []session.Turn) string {
	var sb strings.Builder
	sb.WriteString("# pyllamaui history\n\n")

	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		fmt.Fprintf(&sb, "## %s (%s)\n\n", t.StartedAt.Format("2006-01-02 15:04:05"), t.Model)
		sb.WriteString("**Prompt:**\n\n")
		sb.WriteString(t.Prompt + "\n\n")
		sb.WriteString("**Response:**\n\n")
		sb.WriteString(t.Response + "\n\n")
		if t.Outcome != session.OutcomeDone {
			fmt.Fprintf(&sb, "_%s", t.Outcome)
			if t.Error != "" {
				sb.WriteString(": " + t.Error)
			}
			sb.WriteString("_\n\n")
		}
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

type exportedTurn struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	Model      string    `json:"model"`
	Response   string    `json:"response"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// ExportJSON renders turns as an indented JSON array in the given order.
func ExportJSON(turns []session.Turn) ([]byte, error) {
	out := make([]exportedTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, exportedTurn{
			ID:         t.ID,
			Prompt:     t.Prompt,
			Model:      t.Model,
			Response:   t.Response,
			Outcome:    string(t.Outcome),
			Error:      t.Error,
			StartedAt:  t.StartedAt,
			DurationMs: t.Duration.Milliseconds(),
		})
	}
	return json.MarshalIndent(out, "", "  ")
}
