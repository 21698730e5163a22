// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inference defines the values exchanged between the chat session
// and the model backend.
//
// # Key Types
//
//   - PromptRequest: one dispatch of a user prompt to a model
//   - Event: a decoded backend event (text delta, completion, error)
//   - State: snapshot of the single chat session
//
// # Usage
//
//	req, err := inference.NewPromptRequest("Explain this function", "llama3")
//	if err != nil {
//	    return err
//	}
//	handle, err := backend.Dispatch(ctx, req)
package inference
