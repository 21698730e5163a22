// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/pyllamaui/internal/config"
	"github.com/jeranaias/pyllamaui/internal/ollama"
	"github.com/jeranaias/pyllamaui/internal/storage"
	"github.com/jeranaias/pyllamaui/internal/transport"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitBackendError indicates the model backend could not be reached
	ExitBackendError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "history", "config")
	Action  string // Action being performed (e.g., "show", "set")
	Err     error
}

func (e *CommandError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err with the command that produced it.
func NewCommandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// UsageError reports bad arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

// ErrNoResponse is returned when a prompt finished without any text,
// usually because the backend is unreachable.
var ErrNoResponse = errors.New("no response from the model backend")

// ExitCode maps an error onto the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var validate config.ValidateErrors
	var terr *transport.Error
	switch {
	case errors.As(err, &usage):
		return ExitUsageError
	case errors.As(err, &validate):
		return ExitConfigError
	case errors.Is(err, storage.ErrTurnNotFound):
		return ExitNotFoundError
	case errors.Is(err, ErrNoResponse), ollama.IsNotRunning(err):
		return ExitBackendError
	case errors.As(err, &terr) && terr.Kind == transport.KindConnect:
		return ExitBackendError
	}
	return ExitGeneralError
}
