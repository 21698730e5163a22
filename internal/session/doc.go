// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the lifecycle of the current chat prompt.
//
// The Controller dispatches prompts through a transport.Transport,
// accumulates the streamed text, and reports progress to a Sink. Every
// state change happens on the goroutine running Controller.Run; transport
// events are forwarded into its inbox tagged with their request id, and
// events for a superseded request are discarded.
//
// # States
//
//	Idle -> Dispatching -> Streaming -> Idle
//
// Done, Error, transport close and CancelPrompt all return to Idle and emit
// exactly one streamComplete. Submitting while a prompt is in flight cancels
// the old channel before the new one is dispatched.
//
// # Usage
//
//	ctrl := session.New(tr, sink, session.WithRecorder(store))
//	go ctrl.Run(ctx)
//	if err := ctrl.SubmitPrompt("hello", "llama2"); err != nil {
//	    return err
//	}
package session
