// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes newline-delimited JSON emitted by model backends
// into inference events.
//
// The parser is push-based: transports hand it raw chunks exactly as they
// arrive from the socket or pipe, and it returns whatever complete records
// those chunks finished. Partial records are buffered until their newline
// terminator arrives.
//
// # Record Formats
//
//	{"response":"Hel","done":false}          Ollama /api/generate
//	{"message":{"content":"Hel"},"done":false} Ollama /api/chat
//	{"error":"model not found"}              backend failure
//
// Malformed records are dropped and counted; they never become events.
//
// # Usage
//
//	p := stream.NewParser()
//	for chunk := range chunks {
//	    for _, ev := range p.Feed(chunk) {
//	        handle(ev)
//	    }
//	}
//	for _, ev := range p.Flush() {
//	    handle(ev)
//	}
package stream
