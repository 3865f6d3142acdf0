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
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/observability"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/store"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/responder"
)

// =============================================================================
// Worker States
// =============================================================================

// State is the lifecycle phase of a session worker.
//
// # Description
//
// Workers move Starting → Running and stay there across turns.
// Cancelled and Finished are terminal: Cancelled is reached through
// any cancellation trigger or a responder failure, Finished only
// through deliberate process shutdown.
type State int32

const (
	// StateStarting means the channel pair and cancel signal are wired
	// but the goroutine has not entered its loop yet.
	StateStarting State = iota

	// StateRunning means the worker is consuming turns.
	StateRunning

	// StateCancelled means the worker exited via cancellation.
	StateCancelled

	// StateFinished means the worker exited via process shutdown.
	StateFinished
)

// String returns a log-friendly state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// errTurnCancelled aborts a responder stream when the cooperative
// cancel check observes the signal between tokens.
var errTurnCancelled = errors.New("session: turn cancelled")

// =============================================================================
// Worker
// =============================================================================

// Worker is the single consumer of one session's inbound channel.
//
// # Description
//
// The worker blocks on inbound, hands each user turn to the responder,
// and forwards produced tokens to outbound. Between tokens it checks
// the session's cancel signal (cooperative cancellation); its context
// is additionally cancelled by the registry as a preemptive backstop
// for responder calls that block without producing tokens.
//
// Responder failures never escape the worker: they are converted into
// a diagnostic item plus a cancel marker on outbound, after which the
// worker behaves exactly as if cancellation had been requested.
// Retries, if wanted, belong to the responder, not here.
type Worker struct {
	chatID    string
	channels  *ChannelPair
	signal    *CancelSignal
	responder responder.Responder
	chats     store.ChatStore
	state     atomic.Int32
}

func newWorker(chatID string, channels *ChannelPair, signal *CancelSignal,
	rsp responder.Responder, chats store.ChatStore) *Worker {

	w := &Worker{
		chatID:    chatID,
		channels:  channels,
		signal:    signal,
		responder: rsp,
		chats:     chats,
	}
	w.state.Store(int32(StateStarting))
	return w
}

// State reports the worker's current lifecycle phase.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// run is the worker goroutine body. It returns only from a terminal
// state; the registry removes the session entry once it does.
func (w *Worker) run(ctx context.Context) {
	w.state.Store(int32(StateRunning))
	slog.Debug("session worker running", "chat_id", w.chatID)

	for {
		select {
		case <-ctx.Done():
			// Preemptive cancellation (cancel endpoint backstop) or
			// process shutdown.
			if w.signal.IsSet() {
				w.exit(StateCancelled)
			} else {
				w.exit(StateFinished)
			}
			return

		case <-w.signal.Done():
			w.propagateCancel()
			w.exit(StateCancelled)
			return

		case item := <-w.channels.Inbound():
			switch item.Kind {
			case KindCancel:
				w.propagateCancel()
				w.exit(StateCancelled)
				return

			case KindToken:
				if done := w.consumeTurn(ctx, item.Content); done {
					return
				}

			default:
				slog.Warn("session worker ignoring unexpected inbound item",
					"chat_id", w.chatID,
					"kind", item.Kind.String(),
				)
			}
		}
	}
}

// consumeTurn drives one responder turn. It reports true when the
// worker reached a terminal state and must stop.
func (w *Worker) consumeTurn(ctx context.Context, content string) bool {
	err := w.runTurn(ctx, content)
	switch {
	case err == nil:
		// Turn completed; loop back for the next one.
		return false

	case errors.Is(err, errTurnCancelled), errors.Is(err, context.Canceled):
		w.propagateCancel()
		w.exit(StateCancelled)
		return true

	default:
		// Responder failure: surface a diagnostic, then behave as if
		// cancellation had been requested.
		slog.Error("responder turn failed",
			"chat_id", w.chatID,
			"error", err,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordWorkerFailure()
		}
		_ = w.channels.PushOutbound(ctx, w.signal, ErrorItem(err))
		w.signal.Set()
		w.propagateCancel()
		w.exit(StateCancelled)
		return true
	}
}

// runTurn streams one assistant reply, forwarding tokens to outbound
// and persisting the completed turn.
func (w *Worker) runTurn(ctx context.Context, content string) error {
	history := w.loadHistory(ctx, content)

	var reply strings.Builder
	err := w.responder.StreamTurn(ctx, history, func(token string) error {
		// Cooperative check between tokens.
		if w.signal.IsSet() {
			return errTurnCancelled
		}
		if err := w.channels.PushOutbound(ctx, w.signal, TokenItem(token)); err != nil {
			return err
		}
		reply.WriteString(token)
		return nil
	})
	if err != nil {
		return err
	}
	if w.signal.IsSet() {
		return errTurnCancelled
	}

	if err := w.channels.PushOutbound(ctx, w.signal, EndItem()); err != nil {
		return err
	}

	// Record the completed assistant turn. A persistence failure does
	// not fail the turn the viewer already received; log and continue.
	if _, err := w.chats.AppendMessage(ctx, w.chatID, store.RoleAssistant, reply.String()); err != nil {
		slog.Warn("failed to persist assistant turn",
			"chat_id", w.chatID,
			"error", err,
		)
	}
	return nil
}

// loadHistory fetches the persisted conversation for the responder.
// The newest user message is already persisted by ingress before it is
// enqueued, so normally it is the final element; if history loading
// fails the turn degrades to just the new message.
func (w *Worker) loadHistory(ctx context.Context, content string) []responder.Turn {
	msgs, err := w.chats.ListMessages(ctx, w.chatID)
	if err != nil {
		slog.Warn("failed to load chat history, sending bare turn",
			"chat_id", w.chatID,
			"error", err,
		)
		return []responder.Turn{{Role: responder.RoleUser, Content: content}}
	}

	history := make([]responder.Turn, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, responder.Turn{Role: m.Role, Content: m.Content})
	}
	if len(history) == 0 {
		history = append(history, responder.Turn{Role: responder.RoleUser, Content: content})
	}
	return history
}

// propagateCancel queues a cancel marker for the attached viewer. The
// push is best effort: with no viewer attached the marker just sits in
// the buffer until teardown discards it.
func (w *Worker) propagateCancel() {
	select {
	case w.channels.outbound <- CancelItem():
	default:
	}
}

func (w *Worker) exit(s State) {
	w.state.Store(int32(s))
	slog.Debug("session worker exiting",
		"chat_id", w.chatID,
		"state", s.String(),
	)
}

// =============================================================================
// Worker Handle
// =============================================================================

// WorkerHandle is the registry's reference to a running worker task,
// used to request preemptive cancellation and await termination.
type WorkerHandle struct {
	worker *Worker
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel cancels the worker's context. Safe to call multiple times.
func (h *WorkerHandle) Cancel() {
	h.cancel()
}

// Join blocks until the worker goroutine has fully exited.
//
// # Outputs
//
//   - error: ctx.Err() if ctx ended before the worker did.
func (h *WorkerHandle) Join(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the worker's current lifecycle phase.
func (h *WorkerHandle) State() State {
	return h.worker.State()
}
