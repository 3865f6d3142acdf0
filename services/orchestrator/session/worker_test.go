// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/observability"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/store"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/responder"
)

// =============================================================================
// Test Setup
// =============================================================================

// scriptedResponder implements responder.Responder for worker testing.
//
// Emits the configured tokens one by one, optionally pausing between
// them, then returns Err.
type scriptedResponder struct {
	// Tokens are emitted in order on every StreamTurn call.
	Tokens []string
	// TokenDelay pauses between tokens, honoring ctx.
	TokenDelay time.Duration
	// Err is returned after all tokens are emitted.
	Err error
	// Calls counts StreamTurn invocations.
	Calls atomic.Int32
}

func (m *scriptedResponder) StreamTurn(ctx context.Context, history []responder.Turn, callback responder.StreamCallback) error {
	m.Calls.Add(1)
	for _, token := range m.Tokens {
		if m.TokenDelay > 0 {
			select {
			case <-time.After(m.TokenDelay):
			case <-ctx.Done():
				return fmt.Errorf("scripted stream interrupted: %w", ctx.Err())
			}
		}
		if err := callback(token); err != nil {
			return err
		}
	}
	return m.Err
}

// newTestSession spins up a registry with a scripted responder and a
// fresh chat, returning everything a worker test needs.
func newTestSession(t *testing.T, rsp responder.Responder) (*Registry, *store.MemoryStore, string) {
	t.Helper()

	chats := store.NewMemoryStore()
	chat, err := chats.CreateChat(context.Background(), "local-user")
	require.NoError(t, err)

	cfg := DefaultConfig()
	registry := NewRegistry(rsp, chats, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = registry.Shutdown(ctx)
	})

	return registry, chats, chat.ID
}

// collectOutbound reads outbound items until a terminal kind (End,
// Cancel, Error) or the timeout elapses.
func collectOutbound(t *testing.T, entry *Entry, timeout time.Duration) []Item {
	t.Helper()

	var items []Item
	deadline := time.After(timeout)
	for {
		select {
		case item := <-entry.Channels.Outbound():
			items = append(items, item)
			if item.Kind != KindToken {
				return items
			}
		case <-deadline:
			t.Fatalf("timed out collecting outbound items, got %d so far", len(items))
			return items
		}
	}
}

// =============================================================================
// Worker Tests
// =============================================================================

func TestWorker_StreamsTokensInOrderThenEnd(t *testing.T) {
	rsp := &scriptedResponder{Tokens: []string{"Hel", "lo", "!"}}
	registry, _, chatID := newTestSession(t, rsp)

	require.NoError(t, registry.EnsureWorker(chatID))
	entry, err := registry.Get(chatID)
	require.NoError(t, err)

	require.NoError(t, entry.Channels.PushInbound(TokenItem("hi there")))

	items := collectOutbound(t, entry, 5*time.Second)
	require.Len(t, items, 4)
	assert.Equal(t, "Hel", items[0].Content)
	assert.Equal(t, "lo", items[1].Content)
	assert.Equal(t, "!", items[2].Content)
	assert.Equal(t, KindEnd, items[3].Kind)
}

func TestWorker_ConsumesTurnsInFIFOOrder(t *testing.T) {
	rsp := &scriptedResponder{Tokens: []string{"ok"}}
	registry, _, chatID := newTestSession(t, rsp)

	require.NoError(t, registry.EnsureWorker(chatID))
	entry, err := registry.Get(chatID)
	require.NoError(t, err)

	require.NoError(t, entry.Channels.PushInbound(TokenItem("first")))
	require.NoError(t, entry.Channels.PushInbound(TokenItem("second")))

	firstTurn := collectOutbound(t, entry, 5*time.Second)
	secondTurn := collectOutbound(t, entry, 5*time.Second)

	assert.Equal(t, KindEnd, firstTurn[len(firstTurn)-1].Kind)
	assert.Equal(t, KindEnd, secondTurn[len(secondTurn)-1].Kind)
	assert.Equal(t, int32(2), rsp.Calls.Load(), "both turns should reach the responder")
}

func TestWorker_PersistsAssistantTurn(t *testing.T) {
	rsp := &scriptedResponder{Tokens: []string{"Hel", "lo"}}
	registry, chats, chatID := newTestSession(t, rsp)

	require.NoError(t, registry.EnsureWorker(chatID))
	entry, err := registry.Get(chatID)
	require.NoError(t, err)

	require.NoError(t, entry.Channels.PushInbound(TokenItem("hi")))
	collectOutbound(t, entry, 5*time.Second)

	// Persistence happens after the end marker is pushed.
	require.Eventually(t, func() bool {
		msgs, err := chats.ListMessages(context.Background(), chatID)
		if err != nil {
			return false
		}
		for _, m := range msgs {
			if m.Role == store.RoleAssistant && m.Content == "Hello" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "assistant turn should be persisted")
}

func TestWorker_ResponderFailure_EmitsErrorThenCancel(t *testing.T) {
	rsp := &scriptedResponder{
		Tokens: []string{"par"},
		Err:    errors.New("upstream model unavailable"),
	}
	registry, _, chatID := newTestSession(t, rsp)

	require.NoError(t, registry.EnsureWorker(chatID))
	entry, err := registry.Get(chatID)
	require.NoError(t, err)

	require.NoError(t, entry.Channels.PushInbound(TokenItem("hi")))

	items := collectOutbound(t, entry, 5*time.Second)
	last := items[len(items)-1]
	require.Equal(t, KindError, last.Kind)
	assert.Error(t, last.Err)

	// The failure behaves like a cancellation: the worker exits and
	// the entry is removed without any endpoint being called.
	require.Eventually(t, func() bool {
		return registry.ActiveCount() == 0
	}, 5*time.Second, 10*time.Millisecond, "failed worker should self-teardown")
}

func TestWorker_ResponderFailure_RecordsFailureMetric(t *testing.T) {
	// Metrics stay unregistered for most tests; registration is
	// process-wide, so do it at most once per test binary.
	if observability.DefaultMetrics == nil {
		observability.InitMetrics()
	}
	before := testutil.ToFloat64(observability.DefaultMetrics.WorkerFailuresTotal)

	rsp := &scriptedResponder{Err: errors.New("upstream model unavailable")}
	registry, _, chatID := newTestSession(t, rsp)

	require.NoError(t, registry.EnsureWorker(chatID))
	entry, err := registry.Get(chatID)
	require.NoError(t, err)

	require.NoError(t, entry.Channels.PushInbound(TokenItem("hi")))
	collectOutbound(t, entry, 5*time.Second)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(observability.DefaultMetrics.WorkerFailuresTotal) >= before+1
	}, 5*time.Second, 10*time.Millisecond, "responder failure should count as a worker failure")
}

func TestWorker_CooperativeCancelBetweenTokens(t *testing.T) {
	rsp := &scriptedResponder{
		Tokens:     []string{"a", "b", "c", "d", "e", "f", "g", "h"},
		TokenDelay: 20 * time.Millisecond,
	}
	registry, _, chatID := newTestSession(t, rsp)

	require.NoError(t, registry.EnsureWorker(chatID))
	entry, err := registry.Get(chatID)
	require.NoError(t, err)

	require.NoError(t, entry.Channels.PushInbound(TokenItem("long answer please")))

	// Let the turn get going, then cancel mid-stream.
	<-entry.Channels.Outbound()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, registry.Cancel(ctx, chatID, TriggerClient))

	assert.Equal(t, 0, registry.ActiveCount(), "entry should be gone after Cancel returns")
}

func TestWorker_ShutdownFinishesIdleWorker(t *testing.T) {
	rsp := &scriptedResponder{Tokens: []string{"ok"}}
	registry, _, chatID := newTestSession(t, rsp)

	require.NoError(t, registry.EnsureWorker(chatID))
	entry, err := registry.Get(chatID)
	require.NoError(t, err)
	handle := entry.Handle

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, registry.Shutdown(ctx))

	assert.Equal(t, StateFinished, handle.State(), "idle worker should exit finished, not cancelled")
	assert.Equal(t, 0, registry.ActiveCount())
}
