// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package responder

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EchoResponder is a local backend that streams the last user turn
// back word by word. Useful for running the orchestrator with no
// upstream model and for exercising the streaming path end to end.
//
// # Thread Safety
//
// Safe for concurrent use; it holds no mutable state.
type EchoResponder struct {
	// TokenDelay is the pause between tokens. Zero means no pause.
	TokenDelay time.Duration
}

// NewEchoResponder creates an EchoResponder with a small delay that
// makes streaming visible to a human watching the SSE feed.
func NewEchoResponder() *EchoResponder {
	return &EchoResponder{TokenDelay: 20 * time.Millisecond}
}

// StreamTurn echoes the newest user turn token by token.
func (r *EchoResponder) StreamTurn(ctx context.Context, history []Turn, callback StreamCallback) error {
	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			last = history[i].Content
			break
		}
	}
	if last == "" {
		return callback("...")
	}

	words := strings.Fields(last)
	for i, word := range words {
		if r.TokenDelay > 0 {
			select {
			case <-time.After(r.TokenDelay):
			case <-ctx.Done():
				return fmt.Errorf("echo stream interrupted: %w", ctx.Err())
			}
		}
		token := word
		if i < len(words)-1 {
			token += " "
		}
		if err := callback(token); err != nil {
			return err
		}
	}
	return nil
}

var _ Responder = (*EchoResponder)(nil)
