// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jeranaias/pyllamaui/internal/session"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrTurnNotFound is returned when a turn id does not exist.
// Use errors.Is(err, ErrTurnNotFound) to check for this error.
var ErrTurnNotFound = &HistoryError{Message: "turn not found"}

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = &HistoryError{Message: "history store closed"}

// HistoryError represents a history-related error.
type HistoryError struct {
	Message string
}

// Error implements the error interface.
func (e *HistoryError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing history errors.
func (e *HistoryError) Is(target error) bool {
	t, ok := target.(*HistoryError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// STORE
// =============================================================================

// DefaultMaxTurns is used when Open is given a non-positive limit.
const DefaultMaxTurns = 1000

// recordTimeout bounds a RecordTurn call, which has no caller context.
const recordTimeout = 5 * time.Second

// Store is a SQLite-backed turn history. It is safe for concurrent use.
type Store struct {
	db       *sql.DB
	path     string
	maxTurns int
}

var _ session.Recorder = (*Store)(nil)

// Open opens (creating if needed) the history database at path. The store
// keeps at most maxTurns turns, dropping the oldest first.
func Open(path string, maxTurns int) (*Store, error) {
	if path == "" {
		return nil, errors.New("history path cannot be empty")
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	// Best effort: the file holds prompts, keep it private.
	_ = os.Chmod(path, 0600)

	return &Store{db: db, path: path, maxTurns: maxTurns}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// MaxTurns returns the retention limit.
func (s *Store) MaxTurns() int { return s.maxTurns }

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordTurn stores a finished turn and prunes the oldest turns past the
// retention limit. A turn without an id is given one.
func (s *Store) RecordTurn(t session.Turn) error {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	return s.Record(ctx, t)
}

// Record is RecordTurn with a caller context.
func (s *Store) Record(ctx context.Context, t session.Turn) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin record", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (id, prompt, model, response, outcome, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			response = excluded.response,
			outcome = excluded.outcome,
			error = excluded.error,
			duration_ms = excluded.duration_ms`,
		t.ID, t.Prompt, t.Model, t.Response, string(t.Outcome), t.Error,
		t.StartedAt.UnixMilli(), t.Duration.Milliseconds(),
	)
	if err != nil {
		return wrapDBError("insert turn", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM turns WHERE seq NOT IN (
			SELECT seq FROM turns ORDER BY seq DESC LIMIT ?
		)`, s.maxTurns)
	if err != nil {
		return wrapDBError("prune turns", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError("commit record", err)
	}
	return nil
}

// Recent returns up to limit turns, newest first. A non-positive limit
// returns every stored turn.
func (s *Store) Recent(ctx context.Context, limit int) ([]session.Turn, error) {
	if limit <= 0 {
		limit = s.maxTurns
	}
	rows, err := s.db.QueryContext(ctx, selectTurns+` ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrapDBError("query recent", err)
	}
	return scanTurns(rows)
}

// Get returns the turn with the given id, or a turn whose id starts with it
// when the prefix is unambiguous.
func (s *Store) Get(ctx context.Context, id string) (session.Turn, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return session.Turn{}, ErrTurnNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		selectTurns+` WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY seq DESC LIMIT 2`,
		id, escapeLike(id)+"%")
	if err != nil {
		return session.Turn{}, wrapDBError("query turn", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return session.Turn{}, err
	}

	for _, t := range turns {
		if t.ID == id {
			return t, nil
		}
	}
	if len(turns) != 1 {
		return session.Turn{}, ErrTurnNotFound
	}
	return turns[0], nil
}

// Search returns turns whose prompt or response contains query
// (case-insensitive for ASCII), newest first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]session.Turn, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.Recent(ctx, limit)
	}
	if limit <= 0 {
		limit = s.maxTurns
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		selectTurns+` WHERE prompt LIKE ? ESCAPE '\' OR response LIKE ? ESCAPE '\' ORDER BY seq DESC LIMIT ?`,
		pattern, pattern, limit)
	if err != nil {
		return nil, wrapDBError("search turns", err)
	}
	return scanTurns(rows)
}

// Count returns the number of stored turns.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&n); err != nil {
		return 0, wrapDBError("count turns", err)
	}
	return n, nil
}

// Delete removes one turn.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete turn", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTurnNotFound
	}
	return nil
}

// Clear removes every turn and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns`)
	if err != nil {
		return 0, wrapDBError("clear turns", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// =============================================================================
// HELPERS
// =============================================================================

const selectTurns = `SELECT id, prompt, model, response, outcome, error, started_at, duration_ms FROM turns`

func scanTurns(rows *sql.Rows) ([]session.Turn, error) {
	defer rows.Close()

	var turns []session.Turn
	for rows.Next() {
		var (
			t          session.Turn
			outcome    string
			startedAt  int64
			durationMs int64
		)
		if err := rows.Scan(&t.ID, &t.Prompt, &t.Model, &t.Response, &outcome, &t.Error, &startedAt, &durationMs); err != nil {
			return nil, wrapDBError("scan turn", err)
		}
		t.Outcome = session.Outcome(outcome)
		t.StartedAt = time.UnixMilli(startedAt)
		t.Duration = time.Duration(durationMs) * time.Millisecond
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate turns", err)
	}
	return turns, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func wrapDBError(op string, err error) error {
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%s: %w", op, ErrStoreClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}
