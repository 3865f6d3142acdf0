// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/observability"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/store"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/responder"
)

// =============================================================================
// Cancellation Triggers
// =============================================================================

// CancelTrigger identifies which path requested a session's
// cancellation. All triggers funnel into the same drain-and-teardown
// sequence; the trigger only matters for logs and metrics.
type CancelTrigger string

const (
	// TriggerClient is an explicit cancel request from the owner.
	TriggerClient CancelTrigger = "client"

	// TriggerTimeout is the stream idle timeout.
	TriggerTimeout CancelTrigger = "timeout"

	// TriggerDisconnect is a silent client disconnect detected by the
	// stream handler.
	TriggerDisconnect CancelTrigger = "disconnect"

	// TriggerShutdown is deliberate process shutdown.
	TriggerShutdown CancelTrigger = "shutdown"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds registry sizing knobs.
//
// # Fields
//
//   - InboundCapacity: Buffered turns per session. Default: 64.
//   - OutboundCapacity: Buffered outbound items per session; sized so
//     a turn's tokens survive briefly without an attached viewer.
//     Default: 1024.
//   - MaxActiveSessions: Ceiling on concurrent workers. EnsureWorker
//     returns ErrWorkerLimit beyond it. Default: 256.
type Config struct {
	InboundCapacity   int
	OutboundCapacity  int
	MaxActiveSessions int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		InboundCapacity:   64,
		OutboundCapacity:  1024,
		MaxActiveSessions: 256,
	}
}

// =============================================================================
// Registry
// =============================================================================

// Entry is one session's coordination state. The registry is the sole
// owner; other components must re-fetch it by chat ID on every
// operation rather than holding it across calls.
type Entry struct {
	ChatID   string
	Channels *ChannelPair
	Signal   *CancelSignal
	Handle   *WorkerHandle

	attached atomic.Bool
}

// TryAttach claims the session's single viewer slot. The outbound
// channel has at most one reader, so a second concurrent viewer must
// be turned away; it reports false when another viewer already holds
// the slot.
func (e *Entry) TryAttach() bool {
	return e.attached.CompareAndSwap(false, true)
}

// Detach releases the viewer slot so a later stream can attach.
func (e *Entry) Detach() {
	e.attached.Store(false)
}

// Attached reports whether a viewer currently holds the slot.
func (e *Entry) Attached() bool {
	return e.attached.Load()
}

// Registry is the process-wide map from chat ID to live session
// state.
//
// # Description
//
// Constructed once at startup and injected into handlers. Insertion
// (EnsureWorker) and removal (teardown) are atomic with respect to
// concurrent callers for the same key, so two near-simultaneous first
// messages for a new chat spawn exactly one worker.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	cfg       Config
	responder responder.Responder
	chats     store.ChatStore
}

// NewRegistry creates an empty registry.
//
// # Inputs
//
//   - rsp: Responder used by every spawned worker. Must not be nil.
//   - chats: Persistence collaborator. Must not be nil.
//   - cfg: Sizing configuration, usually DefaultConfig().
func NewRegistry(rsp responder.Responder, chats store.ChatStore, cfg Config) *Registry {
	if rsp == nil {
		panic("NewRegistry: responder must not be nil")
	}
	if chats == nil {
		panic("NewRegistry: chat store must not be nil")
	}
	return &Registry{
		entries:   make(map[string]*Entry),
		cfg:       cfg,
		responder: rsp,
		chats:     chats,
	}
}

// EnsureWorker guarantees a live worker exists for the chat.
//
// # Description
//
// If no entry exists, a channel pair, cancel signal, and worker
// goroutine are created and stored atomically; if one exists the call
// is a no-op. Safe under concurrent invocation for the same chat ID:
// exactly one worker is ever spawned per entry lifetime.
//
// # Outputs
//
//   - error: ErrWorkerLimit (wrapped) when the active-session ceiling
//     is reached; nil otherwise.
func (r *Registry) EnsureWorker(chatID string) error {
	r.mu.Lock()
	if _, ok := r.entries[chatID]; ok {
		r.mu.Unlock()
		return nil
	}
	if len(r.entries) >= r.cfg.MaxActiveSessions {
		active := len(r.entries)
		r.mu.Unlock()
		return fmt.Errorf("%w: %d active", ErrWorkerLimit, active)
	}

	channels := NewChannelPair(r.cfg.InboundCapacity, r.cfg.OutboundCapacity)
	signal := NewCancelSignal()
	worker := newWorker(chatID, channels, signal, r.responder, r.chats)

	// Workers outlive the request that spawned them; their context is
	// rooted here and cancelled through the handle.
	ctx, cancel := context.WithCancel(context.Background())
	handle := &WorkerHandle{worker: worker, cancel: cancel, done: make(chan struct{})}

	entry := &Entry{
		ChatID:   chatID,
		Channels: channels,
		Signal:   signal,
		Handle:   handle,
	}
	r.entries[chatID] = entry
	r.mu.Unlock()

	// Metrics are optional; tests run without InitMetrics.
	if m := observability.DefaultMetrics; m != nil {
		m.WorkerStarted()
	}

	go func() {
		worker.run(ctx)
		cancel()
		// Self-teardown covers exits the cancel endpoint never sees
		// (responder failure, shutdown).
		r.remove(chatID, entry)
		if m := observability.DefaultMetrics; m != nil {
			m.WorkerStopped()
		}
		close(handle.done)
	}()

	slog.Info("session worker spawned", "chat_id", chatID)
	return nil
}

// Get returns the live entry for the chat.
//
// # Outputs
//
//   - *Entry: The entry, nil on error.
//   - error: ErrNotFound when no entry exists.
func (r *Registry) Get(chatID string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Cancel runs the full cancellation sequence for the chat.
//
// # Description
//
// Idempotent: if no entry exists, or the signal is already set, the
// call succeeds immediately with no further side effects. The winning
// caller sets the signal, drains and cancel-marks both channels,
// cancels the worker context (preemptive backstop), waits for the
// worker goroutine to fully exit, and removes the registry entry.
// Once Cancel returns nil, no worker for the chat is running and a
// later EnsureWorker starts from a clean slate.
//
// # Inputs
//
//   - ctx: Bounds the wait for worker termination.
//   - chatID: Session to cancel.
//   - trigger: Which path requested cancellation (logs/metrics only).
//
// # Outputs
//
//   - error: ctx.Err() (wrapped) if the worker did not exit in time.
func (r *Registry) Cancel(ctx context.Context, chatID string, trigger CancelTrigger) error {
	entry, err := r.Get(chatID)
	if err != nil {
		// Already torn down; repeated cancels are no-ops.
		return nil
	}

	if !entry.Signal.TrySet() {
		return nil
	}

	slog.Info("cancelling session",
		"chat_id", chatID,
		"trigger", string(trigger),
	)

	entry.Channels.ForceCancelInbound()
	entry.Channels.ForceCancelOutbound()
	entry.Handle.Cancel()

	if err := entry.Handle.Join(ctx); err != nil {
		return fmt.Errorf("await worker termination: %w", err)
	}

	r.remove(chatID, entry)
	return nil
}

// Teardown removes the chat's entry outright. Idempotent; removing an
// unknown chat is a no-op. Intended for callers that have already
// joined the worker; Cancel is the normal path and calls this
// internally.
func (r *Registry) Teardown(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, chatID)
}

// ActiveCount returns the number of live session entries.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown cancels every worker preemptively and waits for all of
// them to exit. Used on process shutdown; workers exit in the
// Finished state since their cancel signals are never set.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	handles := make([]*WorkerHandle, 0, len(r.entries))
	for _, entry := range r.entries {
		handles = append(handles, entry.Handle)
	}
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, h := range handles {
		h.Cancel()
		g.Go(func() error { return h.Join(ctx) })
	}
	return g.Wait()
}

// remove deletes the entry only if it is still the current one for
// the chat, so a fresh worker spawned after teardown is never removed
// by a stale goroutine.
func (r *Registry) remove(chatID string, entry *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[chatID]; ok && current == entry {
		delete(r.entries, chatID)
	}
}
