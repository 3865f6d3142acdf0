// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session implements the per-chat streaming worker subsystem:
// the session registry, the inbound/outbound channel pair, the
// set-once cancellation signal, and the worker state machine that
// bridges user turns to the streaming responder.
//
// # Architecture
//
// One registry entry exists per active chat. The entry owns the
// channel pair, the cancellation signal, and the worker handle; every
// other component looks these up by chat ID through the registry on
// each call, which prevents stale references after teardown.
//
//	Ingress ──► inbound ──► Worker ──► Responder
//	                          │
//	                          ▼
//	                       outbound ──► Stream handler ──► client
//
// # Thread Safety
//
// The registry map is the only shared mutable structure and is guarded
// by a mutex. The channels are single-producer/single-consumer per
// direction and need no additional locking.
package session

// =============================================================================
// Stream Items
// =============================================================================

// ItemKind discriminates the variants carried on session channels.
//
// # Description
//
// Control markers are typed variants rather than magic sentinel values
// so that channel consumers can switch exhaustively on the kind.
type ItemKind int

const (
	// KindToken carries payload text: a user turn on the inbound
	// channel, or one responder token on the outbound channel.
	KindToken ItemKind = iota

	// KindCancel signals that the session's cancellation signal was
	// set. It unblocks the worker (inbound) or closes the attached
	// stream (outbound).
	KindCancel

	// KindEnd marks the normal completion of one assistant turn.
	// Only ever appears on the outbound channel.
	KindEnd

	// KindError carries a diagnostic for a responder failure. The
	// worker emits it on outbound before behaving as if cancelled.
	KindError
)

// String returns the wire-level name of the item kind.
func (k ItemKind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindCancel:
		return "cancel"
	case KindEnd:
		return "end"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Item is one element of a session channel.
//
// # Fields
//
//   - Kind: Variant discriminator.
//   - Content: Payload text. Only meaningful for KindToken.
//   - Err: Diagnostic. Only meaningful for KindError.
type Item struct {
	Kind    ItemKind
	Content string
	Err     error
}

// TokenItem builds a payload item carrying the given text.
func TokenItem(content string) Item {
	return Item{Kind: KindToken, Content: content}
}

// CancelItem builds a cancellation marker item.
func CancelItem() Item {
	return Item{Kind: KindCancel}
}

// EndItem builds an end-of-turn marker item.
func EndItem() Item {
	return Item{Kind: KindEnd}
}

// ErrorItem builds a diagnostic item wrapping a responder failure.
func ErrorItem(err error) Item {
	return Item{Kind: KindError, Err: err}
}
