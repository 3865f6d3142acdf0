// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package responder defines the streaming LLM collaborator interface.
//
// A Responder consumes one conversation turn (the full history ending
// with the newest user message) and produces the assistant's reply as
// a sequence of tokens delivered through a callback. What the
// responder actually generates is a black box to the rest of the
// system; this package only fixes the streaming contract.
package responder

import "context"

// =============================================================================
// Streaming Contract
// =============================================================================

// Turn is one message of the conversation history handed to the
// responder.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamCallback receives tokens in generation order.
//
// # Description
//
// Returning a non-nil error aborts the stream; the responder must stop
// producing and return that error (or a wrapped form of it) from
// StreamTurn. The worker uses this to implement cooperative
// cancellation between tokens.
type StreamCallback func(token string) error

// Responder produces one assistant turn as a token stream.
//
// # Thread Safety
//
// Implementations must be safe for concurrent StreamTurn calls; every
// active session drives its own call from its own worker goroutine.
type Responder interface {
	// StreamTurn generates the assistant reply for the given history,
	// invoking callback once per token. It returns once the turn is
	// complete, the callback aborted the stream, or ctx was cancelled.
	StreamTurn(ctx context.Context, history []Turn, callback StreamCallback) error
}

// =============================================================================
// Roles
// =============================================================================

const (
	// RoleUser marks turns authored by the human participant.
	RoleUser = "user"

	// RoleAssistant marks turns produced by the responder.
	RoleAssistant = "assistant"
)
