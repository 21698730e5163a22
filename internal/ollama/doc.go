// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// This package covers the endpoints the chat bridge needs: the health check,
// model listing, and the streaming generate endpoint. Decoding the streamed
// body is left to the stream package so the same parser serves every backend.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - GenerateRequest: Request body for /api/generate
//   - ModelInfo: Model metadata returned by /api/tags
//   - ClientError: Typed error with a category for handling
//
// # Usage
//
// Open a streaming generation and hand the body to a parser:
//
//	client := ollama.NewClient()
//	body, err := client.GenerateStream(ctx, ollama.GenerateRequest{
//	    Model:  "llama3",
//	    Prompt: "Hello",
//	    Stream: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
//
// List installed models:
//
//	models, err := client.ListModels(ctx)
//
// # Auto-start
//
// EnsureRunning launches "ollama serve" when the server is not reachable.
// Process attributes are platform-specific (see start_unix.go and
// start_windows.go).
package ollama
