// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CancelSignal Tests
// =============================================================================

func TestCancelSignal_StartsUnset(t *testing.T) {
	sig := NewCancelSignal()

	assert.False(t, sig.IsSet())
	select {
	case <-sig.Done():
		t.Fatal("Done channel should not be closed before Set")
	default:
	}
}

func TestCancelSignal_SetIsIdempotent(t *testing.T) {
	sig := NewCancelSignal()

	sig.Set()
	sig.Set()
	sig.Set()

	assert.True(t, sig.IsSet())
	select {
	case <-sig.Done():
	default:
		t.Fatal("Done channel should be closed after Set")
	}
}

func TestCancelSignal_TrySet_OnlyFirstCallerWins(t *testing.T) {
	sig := NewCancelSignal()

	assert.True(t, sig.TrySet(), "first TrySet should win")
	assert.False(t, sig.TrySet(), "second TrySet should lose")
	assert.False(t, sig.TrySet(), "later TrySet should lose")
	assert.True(t, sig.IsSet())
}

func TestCancelSignal_TrySet_ConcurrentSingleWinner(t *testing.T) {
	sig := NewCancelSignal()
	const goroutines = 50

	wins := make(chan bool, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			wins <- sig.TrySet()
		}()
	}

	winners := 0
	for i := 0; i < goroutines; i++ {
		if <-wins {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one caller should win TrySet")
}

// =============================================================================
// ChannelPair Tests
// =============================================================================

func TestChannelPair_PushInbound_ReturnsErrWhenFull(t *testing.T) {
	pair := NewChannelPair(2, 2)

	require.NoError(t, pair.PushInbound(TokenItem("a")))
	require.NoError(t, pair.PushInbound(TokenItem("b")))

	err := pair.PushInbound(TokenItem("c"))
	assert.ErrorIs(t, err, ErrInboundFull)
}

func TestChannelPair_PushOutbound_DeliversInOrder(t *testing.T) {
	pair := NewChannelPair(2, 4)
	sig := NewCancelSignal()
	ctx := context.Background()

	require.NoError(t, pair.PushOutbound(ctx, sig, TokenItem("one")))
	require.NoError(t, pair.PushOutbound(ctx, sig, TokenItem("two")))
	require.NoError(t, pair.PushOutbound(ctx, sig, EndItem()))

	first := <-pair.Outbound()
	second := <-pair.Outbound()
	third := <-pair.Outbound()

	assert.Equal(t, "one", first.Content)
	assert.Equal(t, "two", second.Content)
	assert.Equal(t, KindEnd, third.Kind)
}

func TestChannelPair_PushOutbound_UnblocksOnCancelSignal(t *testing.T) {
	pair := NewChannelPair(2, 1)
	sig := NewCancelSignal()
	ctx := context.Background()

	// Fill the buffer so the next push blocks.
	require.NoError(t, pair.PushOutbound(ctx, sig, TokenItem("fill")))

	done := make(chan error, 1)
	go func() {
		done <- pair.PushOutbound(ctx, sig, TokenItem("blocked"))
	}()

	sig.Set()

	select {
	case err := <-done:
		assert.NoError(t, err, "push abandoned by cancel should not error")
	case <-time.After(2 * time.Second):
		t.Fatal("PushOutbound did not unblock after cancel signal")
	}
}

func TestChannelPair_PushOutbound_UnblocksOnContext(t *testing.T) {
	pair := NewChannelPair(2, 1)
	sig := NewCancelSignal()

	require.NoError(t, pair.PushOutbound(context.Background(), sig, TokenItem("fill")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- pair.PushOutbound(ctx, sig, TokenItem("blocked"))
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("PushOutbound did not unblock after context cancellation")
	}
}

func TestChannelPair_ForceCancelInbound_DrainsThenMarks(t *testing.T) {
	pair := NewChannelPair(4, 4)
	require.NoError(t, pair.PushInbound(TokenItem("a")))
	require.NoError(t, pair.PushInbound(TokenItem("b")))

	pair.ForceCancelInbound()

	item := <-pair.Inbound()
	assert.Equal(t, KindCancel, item.Kind, "drained queue should hold only the cancel marker")

	select {
	case extra := <-pair.Inbound():
		t.Fatalf("unexpected extra inbound item: %v", extra.Kind)
	default:
	}
}

func TestChannelPair_ForceCancelOutbound_DrainsThenMarks(t *testing.T) {
	pair := NewChannelPair(4, 4)
	sig := NewCancelSignal()
	ctx := context.Background()
	require.NoError(t, pair.PushOutbound(ctx, sig, TokenItem("stale")))
	require.NoError(t, pair.PushOutbound(ctx, sig, EndItem()))

	pair.ForceCancelOutbound()

	item := <-pair.Outbound()
	assert.Equal(t, KindCancel, item.Kind)

	select {
	case extra := <-pair.Outbound():
		t.Fatalf("unexpected extra outbound item: %v", extra.Kind)
	default:
	}
}

// Double force-cancel may leave up to one marker per call; consumers
// tolerate repeated cancel markers.
func TestChannelPair_ForceCancelOutbound_RepeatedIsSafe(t *testing.T) {
	pair := NewChannelPair(2, 4)

	pair.ForceCancelOutbound()
	pair.ForceCancelOutbound()

	count := 0
	for {
		select {
		case item := <-pair.Outbound():
			assert.Equal(t, KindCancel, item.Kind)
			count++
			continue
		default:
		}
		break
	}
	assert.GreaterOrEqual(t, count, 1)
	assert.LessOrEqual(t, count, 2)
}
