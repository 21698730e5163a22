// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes newline-delimited JSON emitted by model backends.
package stream

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/jeranaias/pyllamaui/internal/inference"
)

// MaxRecordSize bounds a single buffered record. A record that grows past
// this without a terminator is discarded as malformed.
const MaxRecordSize = 1024 * 1024

// =============================================================================
// RECORD
// =============================================================================

// record is the union of fields the supported backends emit per line.
type record struct {
	Response *string `json:"response"`
	Message  *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	Error      string `json:"error,omitempty"`

	TotalDuration      int64 `json:"total_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

func (r *record) text() string {
	if r.Response != nil {
		return *r.Response
	}
	if r.Message != nil {
		return r.Message.Content
	}
	return ""
}

// =============================================================================
// STATISTICS
// =============================================================================

// Stats holds the generation statistics reported on the final record.
type Stats struct {
	DoneReason       string
	TotalDuration    time.Duration
	PromptTokens     int
	PromptDuration   time.Duration
	CompletionTokens int
	EvalDuration     time.Duration
}

// TokensPerSecond returns the generation speed, or 0 when unknown.
func (s Stats) TokensPerSecond() float64 {
	if s.EvalDuration <= 0 {
		return 0
	}
	return float64(s.CompletionTokens) / s.EvalDuration.Seconds()
}

// =============================================================================
// PARSER
// =============================================================================

// Parser turns raw chunks into inference events for one stream.
// It is not safe for concurrent use; each stream owns its parser.
type Parser struct {
	buf      []byte
	finished bool
	dropped  int
	deltas   int
	stats    Stats
}

// NewParser creates a parser ready for a new stream.
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes one raw chunk and returns the events completed by it.
// After a terminal record has been seen, Feed discards its input.
func (p *Parser) Feed(chunk []byte) []inference.Event {
	if p.finished {
		return nil
	}

	var events []inference.Event
	p.buf = append(p.buf, chunk...)

	for !p.finished {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]
		events = append(events, p.parseLine(line)...)
	}

	if p.finished {
		p.buf = nil
		return events
	}

	if len(p.buf) > MaxRecordSize {
		p.dropped++
		p.buf = nil
	}

	if len(p.buf) == 0 {
		p.buf = nil
	}

	return events
}

// Flush parses any trailing record that arrived without a terminator.
// Transports call it once when the underlying stream reaches EOF.
func (p *Parser) Flush() []inference.Event {
	if p.finished || len(p.buf) == 0 {
		p.buf = nil
		return nil
	}
	line := p.buf
	p.buf = nil
	return p.parseLine(line)
}

// Reset prepares the parser for a new stream.
func (p *Parser) Reset() {
	p.buf = nil
	p.finished = false
	p.dropped = 0
	p.deltas = 0
	p.stats = Stats{}
}

// Finished reports whether a terminal record has been seen.
func (p *Parser) Finished() bool { return p.finished }

// Dropped returns how many malformed records were discarded.
func (p *Parser) Dropped() int { return p.dropped }

// Deltas returns how many text deltas were emitted.
func (p *Parser) Deltas() int { return p.deltas }

// Stats returns the statistics carried by the completion record, if any.
func (p *Parser) Stats() Stats { return p.stats }

// parseLine decodes one terminated record.
func (p *Parser) parseLine(line []byte) []inference.Event {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	rec, ok := decodeRecord(line)
	if !ok {
		p.dropped++
		return nil
	}

	if rec.Error != "" {
		p.finished = true
		return []inference.Event{inference.Error(rec.Error)}
	}

	var events []inference.Event
	if text := rec.text(); text != "" {
		p.deltas++
		events = append(events, inference.TextDelta(text))
	}

	if rec.Done {
		p.finished = true
		p.stats = Stats{
			DoneReason:       rec.DoneReason,
			TotalDuration:    time.Duration(rec.TotalDuration),
			PromptTokens:     rec.PromptEvalCount,
			PromptDuration:   time.Duration(rec.PromptEvalDuration),
			CompletionTokens: rec.EvalCount,
			EvalDuration:     time.Duration(rec.EvalDuration),
		}
		events = append(events, inference.Done())
	}

	return events
}

// maxResync bounds how many suffixes decodeRecord tries on a bad line.
const maxResync = 8

// decodeRecord parses a line as a JSON object. When the whole line is not
// valid it retries from the last few '{' positions, nearest the end first,
// so a fragment of a dropped record glued in front of a valid one does not
// take the valid one down with it.
func decodeRecord(line []byte) (record, bool) {
	var rec record
	if line[0] == '{' && json.Unmarshal(line, &rec) == nil {
		return rec, true
	}

	end := len(line)
	for tries := 0; tries < maxResync; tries++ {
		i := bytes.LastIndexByte(line[:end], '{')
		if i <= 0 {
			break
		}
		rec = record{}
		if json.Unmarshal(line[i:], &rec) == nil {
			return rec, true
		}
		end = i
	}
	return record{}, false
}
