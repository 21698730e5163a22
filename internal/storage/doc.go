// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists finished chat turns in a SQLite database.
//
// The Store implements session.Recorder, so the controller records each
// turn as it ends. The history command reads it back.
//
// # Usage
//
//	store, err := storage.Open(config.HistoryPath(), 1000)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	turns, err := store.Recent(ctx, 20)
package storage
