// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/datatypes"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/middleware"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/observability"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/session"
)

// =============================================================================
// Configuration
// =============================================================================

// StreamConfig holds SSE stream timing knobs.
//
// # Fields
//
//   - IdleTimeout: How long a stream may sit with no outbound items
//     before the session is cancelled with a timeout event.
//     Default: 300s.
//   - KeepAliveInterval: Interval for SSE comment pings. Set to stay
//     well under typical LB timeouts (60s for ALB/Nginx).
//     Default: 15s.
//   - CancelWait: How long handler-initiated cancellations wait for
//     worker termination. Default: 10s.
type StreamConfig struct {
	IdleTimeout       time.Duration
	KeepAliveInterval time.Duration
	CancelWait        time.Duration
}

// DefaultStreamConfig returns production defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		IdleTimeout:       300 * time.Second,
		KeepAliveInterval: 15 * time.Second,
		CancelWait:        10 * time.Second,
	}
}

// =============================================================================
// Stream Handler
// =============================================================================

// HandleChatStream attaches the caller to the chat's SSE stream.
//
// # Description
//
// Handles GET /v1/chats/:id/stream. The connection is long-lived and
// carries every outbound item the chat's worker produces:
//
//   - assistant: one response token per event, raw text payload
//   - turn_end: a completed assistant turn; the stream stays open
//   - cancel: the session was cancelled; the stream closes
//   - timeout: the idle timeout fired; the stream closes
//
// A worker is spawned if none is live, so a viewer may attach before
// the first message is sent. Keepalive comments are written between
// events. If no item arrives within the idle timeout the handler
// emits a timeout event and cancels the session; if the client
// disconnects silently the session is cancelled in the background so
// the responder stops burning tokens.
//
// # Responses
//
//   - SSE stream on success (200 with text/event-stream)
//   - 401: Caller not authenticated
//   - 404: Chat does not exist or belongs to another user
//   - 409: Another stream is already attached to the session
//   - 500: ResponseWriter does not support streaming
//   - 503: Active-session ceiling reached
//
// # Limitations
//
//   - A session carries exactly one viewer at a time. The outbound
//     channel has a single reader, so there is no fan-out; a second
//     concurrent attach is rejected with 409 and may retry once the
//     first viewer detaches.
func (h *chatHandler) HandleChatStream(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChatStream")
	defer span.End()

	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		c.JSON(http.StatusUnauthorized, datatypes.ErrorResponse{Error: "not authenticated"})
		return
	}

	chatID := c.Param("id")
	span.SetAttributes(
		attribute.String("user.id", authInfo.UserID),
		attribute.String("chat.id", chatID),
	)

	if _, err := h.chats.GetChat(ctx, chatID, authInfo.UserID); err != nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "chat not found"})
		return
	}

	if err := h.registry.EnsureWorker(chatID); err != nil {
		if errors.Is(err, session.ErrWorkerLimit) {
			c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{Error: "too many active sessions"})
			return
		}
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not start session"})
		return
	}
	entry, err := h.registry.Get(chatID)
	if err != nil {
		// Cancelled between EnsureWorker and Get; nothing to stream.
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "chat not found"})
		return
	}

	// The outbound channel has a single reader. Claim the viewer slot
	// before any SSE bytes go out; a losing concurrent attach gets a
	// clean JSON 409 instead of a half-open stream.
	if !entry.TryAttach() {
		c.JSON(http.StatusConflict, datatypes.ErrorResponse{Error: "a stream is already attached to this chat"})
		return
	}
	defer entry.Detach()

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "SSE setup failed")
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "streaming not supported"})
		return
	}

	// Commit headers immediately so the client sees the stream open
	// even when no turn is in flight.
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	metrics := observability.DefaultMetrics
	if metrics != nil {
		metrics.StreamStarted()
		defer metrics.StreamEnded()
	}

	slog.Info("stream attached", "chat_id", chatID, "user_id", authInfo.UserID)
	start := time.Now()

	idle := time.NewTimer(h.streamCfg.IdleTimeout)
	defer idle.Stop()
	keepalive := time.NewTicker(h.streamCfg.KeepAliveInterval)
	defer keepalive.Stop()

	finish := func(outcome observability.StreamOutcome) {
		if metrics != nil {
			metrics.RecordStreamDuration(outcome, time.Since(start).Seconds())
		}
		slog.Info("stream detached",
			"chat_id", chatID,
			"outcome", string(outcome),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	for {
		select {
		case item, ok := <-entry.Channels.Outbound():
			if !ok {
				// Channel closed during teardown.
				finish(observability.OutcomeCancel)
				return
			}
			resetIdle(idle, h.streamCfg.IdleTimeout)
			switch item.Kind {
			case session.KindToken:
				if err := writer.WriteAssistant(item.Content); err != nil {
					h.cancelDetached(chatID, session.TriggerDisconnect)
					finish(observability.OutcomeDisconnect)
					return
				}
				if metrics != nil {
					metrics.RecordTokenStreamed()
				}
			case session.KindEnd:
				if err := writer.WriteTurnEnd(); err != nil {
					h.cancelDetached(chatID, session.TriggerDisconnect)
					finish(observability.OutcomeDisconnect)
					return
				}
			case session.KindCancel:
				_ = writer.WriteCancel()
				finish(observability.OutcomeCancel)
				return
			case session.KindError:
				// Internal detail stays in logs; the client just sees
				// the session end.
				slog.Error("session failed mid-stream", "chat_id", chatID, "error", item.Err)
				_ = writer.WriteCancel()
				finish(observability.OutcomeCancel)
				return
			}

		case <-ctx.Done():
			// Silent client disconnect. Cancel in the background so
			// the worker stops consuming responder tokens.
			h.cancelDetached(chatID, session.TriggerDisconnect)
			finish(observability.OutcomeDisconnect)
			return

		case <-idle.C:
			_ = writer.WriteTimeout()
			h.cancelBlocking(chatID, session.TriggerTimeout)
			finish(observability.OutcomeTimeout)
			return

		case <-keepalive.C:
			if err := writer.WriteKeepAlive(); err != nil {
				h.cancelDetached(chatID, session.TriggerDisconnect)
				finish(observability.OutcomeDisconnect)
				return
			}
			if metrics != nil {
				metrics.RecordKeepAlive()
			}
		}
	}
}

// resetIdle drains and resets the idle timer. An item arrived, so the
// session is not idle; a concurrently fired expiry is swallowed.
func resetIdle(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// cancelBlocking runs the cancellation sequence and waits for the
// worker to terminate, bounded by the configured cancel wait.
func (h *chatHandler) cancelBlocking(chatID string, trigger session.CancelTrigger) {
	ctx, cancel := context.WithTimeout(context.Background(), h.streamCfg.CancelWait)
	defer cancel()

	if err := h.registry.Cancel(ctx, chatID, trigger); err != nil {
		slog.Error("cancel session failed", "error", err, "chat_id", chatID, "trigger", string(trigger))
		return
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordCancellation(string(trigger))
	}
}

// cancelDetached runs the cancellation sequence on a fresh goroutine.
// Used when the client is already gone and nobody is waiting on the
// response.
func (h *chatHandler) cancelDetached(chatID string, trigger session.CancelTrigger) {
	go h.cancelBlocking(chatID, trigger)
}
