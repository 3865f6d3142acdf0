// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import "errors"

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrNotFound is returned by Registry.Get when no entry exists for
	// the requested chat ID. Handlers surface it as 404.
	ErrNotFound = errors.New("session: no active entry for chat")

	// ErrWorkerLimit is returned by Registry.EnsureWorker when the
	// configured active-session ceiling is reached. Handlers surface
	// it as 500; it is not retried automatically.
	ErrWorkerLimit = errors.New("session: active worker limit reached")

	// ErrInboundFull is returned when a turn cannot be queued because
	// the inbound channel is at capacity.
	ErrInboundFull = errors.New("session: inbound queue full")
)
