// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"sync"
)

// =============================================================================
// Cancellation Signal
// =============================================================================

// CancelSignal is a set-once, observe-many cancellation flag for one
// session.
//
// # Description
//
// The signal is monotonic: once set it stays set for the lifetime of
// the registry entry; a recreated session gets a fresh signal. Setting
// is idempotent and broadcasts to every observer via a closed channel,
// so workers and stream handlers can select on Done() alongside their
// data channels.
//
// # Thread Safety
//
// Safe for concurrent use.
type CancelSignal struct {
	once sync.Once
	done chan struct{}
}

// NewCancelSignal returns an unset signal.
func NewCancelSignal() *CancelSignal {
	return &CancelSignal{done: make(chan struct{})}
}

// Set flips the signal. Safe to call any number of times.
func (s *CancelSignal) Set() {
	s.once.Do(func() { close(s.done) })
}

// TrySet flips the signal and reports whether this call was the one
// that flipped it. The cancellation sequence runs only in the caller
// that wins; later callers treat the cancel as already done.
func (s *CancelSignal) TrySet() bool {
	first := false
	s.once.Do(func() {
		first = true
		close(s.done)
	})
	return first
}

// IsSet reports whether the signal has been flipped.
func (s *CancelSignal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the signal is set.
func (s *CancelSignal) Done() <-chan struct{} {
	return s.done
}

// =============================================================================
// Channel Pair
// =============================================================================

// ChannelPair owns the two FIFO queues of one session.
//
// # Description
//
// The inbound channel carries user turns from the ingress handler to
// the worker; the outbound channel carries responder tokens and
// control markers from the worker to the attached stream handler.
// Both are bounded. Per-session FIFO ordering is guaranteed by the
// underlying Go channels; no ordering exists across sessions.
//
// # Invariants
//
//   - inbound has exactly one reader: the session's worker.
//   - outbound has at most one reader: the currently attached stream
//     handler (last attacher wins; concurrent fan-out is not
//     supported).
type ChannelPair struct {
	inbound  chan Item
	outbound chan Item
}

// NewChannelPair creates a channel pair with the given capacities.
func NewChannelPair(inboundCap, outboundCap int) *ChannelPair {
	return &ChannelPair{
		inbound:  make(chan Item, inboundCap),
		outbound: make(chan Item, outboundCap),
	}
}

// PushInbound queues a user turn without blocking.
//
// # Outputs
//
//   - error: ErrInboundFull if the queue is at capacity.
func (p *ChannelPair) PushInbound(item Item) error {
	select {
	case p.inbound <- item:
		return nil
	default:
		return ErrInboundFull
	}
}

// PushOutbound queues an item for the attached stream handler.
//
// # Description
//
// Blocks while the outbound buffer is full (a slow or absent viewer),
// but never past cancellation: the send is raced against both the
// session's cancel signal and the worker context so a cancelled
// session cannot wedge its worker.
//
// # Outputs
//
//   - error: ctx.Err() if the context ended first; nil otherwise.
//     A send abandoned because the cancel signal fired returns nil;
//     the caller observes the signal on its own path.
func (p *ChannelPair) PushOutbound(ctx context.Context, sig *CancelSignal, item Item) error {
	select {
	case p.outbound <- item:
		return nil
	case <-sig.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbound exposes the worker-side read end of the inbound queue.
func (p *ChannelPair) Inbound() <-chan Item {
	return p.inbound
}

// Outbound exposes the viewer-side read end of the outbound queue.
func (p *ChannelPair) Outbound() <-chan Item {
	return p.outbound
}

// DrainInbound discards everything currently queued on inbound and
// returns the number of items dropped.
func (p *ChannelPair) DrainInbound() int {
	return drain(p.inbound)
}

// DrainOutbound discards everything currently queued on outbound and
// returns the number of items dropped.
func (p *ChannelPair) DrainOutbound() int {
	return drain(p.outbound)
}

// ForceCancelInbound drains inbound and then queues a cancel marker so
// a worker blocked on the queue wakes up and observes cancellation.
func (p *ChannelPair) ForceCancelInbound() {
	p.DrainInbound()
	select {
	case p.inbound <- CancelItem():
	default:
	}
}

// ForceCancelOutbound drains outbound and then queues a cancel marker
// for the attached stream handler, if any.
func (p *ChannelPair) ForceCancelOutbound() {
	p.DrainOutbound()
	select {
	case p.outbound <- CancelItem():
	default:
	}
}

// drain removes all currently buffered items from ch without blocking.
func drain(ch chan Item) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}
