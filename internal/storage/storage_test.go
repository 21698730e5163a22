// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pyllamaui/internal/session"
)

// =============================================================================
// HELPERS
// =============================================================================

func openTestStore(t *testing.T, maxTurns int) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), maxTurns)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func turn(id, prompt, response string) session.Turn {
	return session.Turn{
		ID:        id,
		Prompt:    prompt,
		Model:     "llama2",
		Response:  response,
		Outcome:   session.OutcomeDone,
		StartedAt: time.UnixMilli(1700000000000),
		Duration:  1500 * time.Millisecond,
	}
}

// =============================================================================
// STORE TESTS
// =============================================================================

func TestOpen_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := Open(path, 0)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, path, store.Path())
	assert.Equal(t, DefaultMaxTurns, store.MaxTurns())
	assert.FileExists(t, path)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("", 10)
	assert.Error(t, err)
}

func TestRecordAndGet(t *testing.T) {
	store := openTestStore(t, 10)
	ctx := context.Background()

	want := turn("abc-123", "Hello", "Hi there")
	require.NoError(t, store.RecordTurn(want))

	got, err := store.Get(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Prompt, got.Prompt)
	assert.Equal(t, want.Model, got.Model)
	assert.Equal(t, want.Response, got.Response)
	assert.Equal(t, want.Outcome, got.Outcome)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, want.Duration, got.Duration)
}

func TestGet_ByPrefix(t *testing.T) {
	store := openTestStore(t, 10)
	ctx := context.Background()

	require.NoError(t, store.RecordTurn(turn("aaaa-1", "one", "1")))
	require.NoError(t, store.RecordTurn(turn("aaab-2", "two", "2")))

	got, err := store.Get(ctx, "aaab")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Prompt)

	_, err = store.Get(ctx, "aaa")
	assert.True(t, errors.Is(err, ErrTurnNotFound), "ambiguous prefix should not match")
}

func TestGet_NotFound(t *testing.T) {
	store := openTestStore(t, 10)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTurnNotFound)

	_, err = store.Get(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrTurnNotFound)
}

func TestRecordTurn_AssignsID(t *testing.T) {
	store := openTestStore(t, 10)

	require.NoError(t, store.RecordTurn(session.Turn{Prompt: "p", Model: "m", Outcome: session.OutcomeCanceled}))

	turns, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.NotEmpty(t, turns[0].ID)
	assert.False(t, turns[0].StartedAt.IsZero())
}

func TestRecordTurn_SameIDUpdates(t *testing.T) {
	store := openTestStore(t, 10)
	ctx := context.Background()

	first := turn("same", "prompt", "partial")
	first.Outcome = session.OutcomeError
	first.Error = "boom"
	require.NoError(t, store.RecordTurn(first))
	require.NoError(t, store.RecordTurn(turn("same", "prompt", "full")))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, "full", got.Response)
	assert.Equal(t, session.OutcomeDone, got.Outcome)
	assert.Empty(t, got.Error)
}

func TestRecent_NewestFirst(t *testing.T) {
	store := openTestStore(t, 10)

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, store.RecordTurn(turn(id, "prompt "+id, "")))
	}

	turns, err := store.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "t3", turns[0].ID)
	assert.Equal(t, "t2", turns[1].ID)

	all, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecordTurn_PrunesOldest(t *testing.T) {
	store := openTestStore(t, 3)
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		require.NoError(t, store.RecordTurn(turn(id, id, id)))
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = store.Get(ctx, "t1")
	assert.ErrorIs(t, err, ErrTurnNotFound)
	_, err = store.Get(ctx, "t5")
	assert.NoError(t, err)
}

func TestSearch(t *testing.T) {
	store := openTestStore(t, 10)
	ctx := context.Background()

	require.NoError(t, store.RecordTurn(turn("t1", "Explain goroutines", "They are cheap threads")))
	require.NoError(t, store.RecordTurn(turn("t2", "Write a haiku", "Autumn moonlight")))
	require.NoError(t, store.RecordTurn(turn("t3", "100% sure?", "yes")))

	found, err := store.Search(ctx, "GOROUTINES", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "t1", found[0].ID)

	found, err = store.Search(ctx, "moonlight", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "t2", found[0].ID)

	found, err = store.Search(ctx, "%", 10)
	require.NoError(t, err)
	require.Len(t, found, 1, "wildcards are matched literally")
	assert.Equal(t, "t3", found[0].ID)

	found, err = store.Search(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, found, 3)
}

func TestDeleteAndClear(t *testing.T) {
	store := openTestStore(t, 10)
	ctx := context.Background()

	require.NoError(t, store.RecordTurn(turn("t1", "a", "")))
	require.NoError(t, store.RecordTurn(turn("t2", "b", "")))

	require.NoError(t, store.Delete(ctx, "t1"))
	assert.ErrorIs(t, store.Delete(ctx, "t1"), ErrTurnNotFound)

	n, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(path, 10)
	require.NoError(t, err)
	require.NoError(t, store.RecordTurn(turn("keep", "prompt", "reply")))
	require.NoError(t, store.Close())

	store, err = Open(path, 10)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(context.Background(), "keep")
	require.NoError(t, err)
	assert.Equal(t, "reply", got.Response)
}

func TestStore_Closed(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), 10)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.Error(t, store.RecordTurn(turn("x", "p", "r")))
}

// =============================================================================
// FORMATTING TESTS
// =============================================================================

func TestFormatTurnList_Empty(t *testing.T) {
	assert.Equal(t, "No turns recorded.", FormatTurnList(nil, 80))
}

func TestFormatTurnList(t *testing.T) {
	long := turn("0123456789abcdef", "line one\nline two "+strings.Repeat("x", 200), "")
	out := FormatTurnList([]session.Turn{long}, 80)

	assert.Contains(t, out, "Prompt")
	assert.Contains(t, out, "01234567 ")
	assert.NotContains(t, out, "89abcdef")
	assert.Contains(t, out, "line one line two")
	assert.Contains(t, out, "...")
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		assert.LessOrEqual(t, len(line), 80)
	}
}

func TestExportMarkdown_OldestFirst(t *testing.T) {
	newer := turn("t2", "second", "two")
	newer.Outcome = session.OutcomeError
	newer.Error = "model crashed"
	older := turn("t1", "first", "one")

	md := ExportMarkdown([]session.Turn{newer, older})

	assert.True(t, strings.HasPrefix(md, "# pyllamaui history"))
	assert.Less(t, strings.Index(md, "first"), strings.Index(md, "second"))
	assert.Contains(t, md, "_error: model crashed_")
}

func TestExportJSON(t *testing.T) {
	data, err := ExportJSON([]session.Turn{turn("t1", "p", "r")})
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "t1", decoded[0]["id"])
	assert.Equal(t, float64(1500), decoded[0]["duration_ms"])
	assert.NotContains(t, decoded[0], "error")
}
