// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// =============================================================================
// Event Names
// =============================================================================

const (
	// EventAssistant carries one response token as its raw data payload.
	EventAssistant = "assistant"

	// EventTurnEnd marks a completed assistant turn.
	EventTurnEnd = "turn_end"

	// EventCancel tells the client the session was cancelled.
	EventCancel = "cancel"

	// EventTimeout tells the client the stream hit its idle timeout.
	EventTimeout = "timeout"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter defines the contract for writing Server-Sent Events to HTTP
// responses.
//
// # Description
//
// SSEWriter abstracts SSE event serialization and writing, enabling
// testability and separation from HTTP response mechanics. Payloads are
// written as raw data strings in the SSE wire format
// (event: name\ndata: payload\n\n); there is no JSON envelope, so
// clients read token text directly from the data field.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple
// goroutines. The stream handler emits keepalives and events from the
// same loop today, but the contract does not rely on that.
//
// # Limitations
//
//   - Must be used with http.Flusher-compatible ResponseWriter
//   - Response headers must be set before first write
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders()
type SSEWriter interface {
	// WriteAssistant writes one token as an assistant event.
	//
	// # Inputs
	//
	//   - token: Token text (may be a partial word or whitespace).
	//
	// # Outputs
	//
	//   - error: Non-nil if writing failed.
	WriteAssistant(token string) error

	// WriteTurnEnd writes the turn_end event marking a completed
	// assistant turn.
	WriteTurnEnd() error

	// WriteCancel writes the cancel event. The stream should be closed
	// after this call.
	WriteCancel() error

	// WriteTimeout writes the timeout event. The stream should be
	// closed after this call.
	WriteTimeout() error

	// WriteKeepAlive sends a comment line to prevent connection
	// timeouts.
	//
	// # Description
	//
	// Sends an SSE comment (": ping\n\n") to keep the connection alive
	// between assistant turns. SSE comments are ignored by clients but
	// keep the TCP connection active, preventing timeout disconnections
	// from load balancers (AWS ALB, Nginx default 60s).
	//
	// # Outputs
	//
	//   - error: Non-nil if writing failed.
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements SSEWriter for HTTP SSE responses.
//
// # Description
//
// sseWriter wraps an http.ResponseWriter to emit SSE-formatted events.
// Each event is written in the format:
//
//	event: {name}
//	data: {payload}
//
// Multi-line payloads are split into one data line per line of text,
// per the SSE framing rules; clients reassemble them joined by "\n".
// Every write flushes immediately so tokens appear as they arrive.
//
// # Fields
//
//   - writer: Underlying http.ResponseWriter
//   - flusher: http.Flusher interface for immediate send
//   - mu: Mutex for thread-safe writes
//
// # Thread Safety
//
// Thread-safe via mutex.
//
// # Limitations
//
//   - Cannot be reused across requests
//
// # Assumptions
//
//   - Response headers already set by caller
//   - ResponseWriter supports http.Flusher interface
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// =============================================================================
// Constructor
// =============================================================================

// NewSSEWriter creates a new SSEWriter for the given ResponseWriter.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - SSEWriter: Ready to write SSE events.
//   - error: Non-nil if ResponseWriter doesn't support flushing.
//
// # Examples
//
//	SetSSEHeaders(w)
//	writer, err := NewSSEWriter(w)
//	if err != nil {
//	    http.Error(w, "Streaming not supported", http.StatusInternalServerError)
//	    return
//	}
//	writer.WriteAssistant("Hello")
//	writer.WriteTurnEnd()
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// writeEvent writes a single named event with a raw data payload and
// flushes.
func (w *sseWriter) writeEvent(name, payload string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, "event: %s\n", name); err != nil {
		return fmt.Errorf("write event name: %w", err)
	}
	// Each line of the payload gets its own data field so embedded
	// newlines survive SSE framing.
	for _, line := range strings.Split(payload, "\n") {
		if _, err := fmt.Fprintf(w.writer, "data: %s\n", line); err != nil {
			return fmt.Errorf("write event data: %w", err)
		}
	}
	if _, err := fmt.Fprint(w.writer, "\n"); err != nil {
		return fmt.Errorf("write event terminator: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// WriteAssistant writes one token as an assistant event.
func (w *sseWriter) WriteAssistant(token string) error {
	return w.writeEvent(EventAssistant, token)
}

// WriteTurnEnd writes the turn_end event.
func (w *sseWriter) WriteTurnEnd() error {
	return w.writeEvent(EventTurnEnd, "")
}

// WriteCancel writes the cancel event.
func (w *sseWriter) WriteCancel() error {
	return w.writeEvent(EventCancel, "")
}

// WriteTimeout writes the timeout event.
func (w *sseWriter) WriteTimeout() error {
	return w.writeEvent(EventTimeout, "")
}

// WriteKeepAlive sends a comment line to keep the connection alive.
//
// # Description
//
// Writes an SSE comment (": ping\n\n"). Comments are ignored by SSE
// clients but reset load balancer timeout counters.
//
// # Outputs
//
//   - error: Non-nil if writing failed.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon followed by text, then double newline
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// # Description
//
// Sets the required headers for Server-Sent Events:
//   - Content-Type: text/event-stream
//   - Cache-Control: no-cache
//   - Connection: keep-alive
//   - X-Accel-Buffering: no (disables nginx buffering)
//
// Must be called before writing any response body.
//
// # Inputs
//
//   - w: HTTP ResponseWriter to configure.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEWriter = (*sseWriter)(nil)
