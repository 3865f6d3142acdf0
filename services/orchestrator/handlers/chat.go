// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the orchestrator's HTTP endpoints.
//
// The chat endpoints form one pipeline: a chat is created, user turns
// are posted to its message endpoint, a long-lived SSE stream delivers
// assistant tokens, and the cancel endpoint (or a timeout or
// disconnect) tears the session down. Session coordination lives in
// the session package; handlers translate HTTP into registry and
// store calls.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/datatypes"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/middleware"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/observability"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/session"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/store"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ChatHandler defines the HTTP surface for session-scoped chat.
//
// # Description
//
// One handler instance serves all chat routes. It owns no per-request
// state; the session registry and chat store are shared collaborators
// injected at construction.
//
// # Thread Safety
//
// Thread-safe. All fields are read-only after construction.
type ChatHandler interface {
	// HandleCreateChat handles POST /v1/chats.
	HandleCreateChat(c *gin.Context)

	// HandleSendMessage handles POST /v1/chats/:id/messages.
	HandleSendMessage(c *gin.Context)

	// HandleListMessages handles GET /v1/chats/:id/messages.
	HandleListMessages(c *gin.Context)

	// HandleCancelChat handles POST /v1/chats/:id/cancel.
	HandleCancelChat(c *gin.Context)

	// HandleChatStream handles GET /v1/chats/:id/stream.
	HandleChatStream(c *gin.Context)
}

// =============================================================================
// Struct Definition
// =============================================================================

// chatHandler implements ChatHandler.
//
// # Fields
//
//   - registry: Session registry owning worker lifecycles
//   - chats: Persistence for chats and messages
//   - streamCfg: SSE stream timing knobs
//   - tracer: OpenTelemetry tracer for distributed tracing
type chatHandler struct {
	registry  *session.Registry
	chats     store.ChatStore
	streamCfg StreamConfig
	tracer    trace.Tracer
}

// =============================================================================
// Constructor
// =============================================================================

// NewChatHandler creates a ChatHandler with the provided dependencies.
//
// # Inputs
//
//   - registry: Session registry. Must not be nil.
//   - chats: Chat store. Must not be nil.
//   - streamCfg: Stream timing configuration, usually
//     DefaultStreamConfig().
//
// # Outputs
//
//   - ChatHandler: Ready for use with Gin router
//
// # Examples
//
//	handler := handlers.NewChatHandler(registry, chats, handlers.DefaultStreamConfig())
//	router.POST("/v1/chats", handler.HandleCreateChat)
func NewChatHandler(registry *session.Registry, chats store.ChatStore, streamCfg StreamConfig) ChatHandler {
	if registry == nil {
		panic("NewChatHandler: registry must not be nil")
	}
	if chats == nil {
		panic("NewChatHandler: chat store must not be nil")
	}

	return &chatHandler{
		registry:  registry,
		chats:     chats,
		streamCfg: streamCfg,
		tracer:    otel.Tracer("orchestrator.handlers.chat"),
	}
}

// =============================================================================
// Handler Methods
// =============================================================================

// HandleCreateChat creates a new chat owned by the caller.
//
// # Description
//
// Handles POST /v1/chats. No worker is spawned here; workers are
// created lazily when the first message arrives or a viewer attaches.
//
// # Responses
//
//   - 201: CreateChatResponse with the chat ID and stream URL
//   - 401: Caller not authenticated
//   - 500: Persistence failure
func (h *chatHandler) HandleCreateChat(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleCreateChat")
	defer span.End()

	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		c.JSON(http.StatusUnauthorized, datatypes.ErrorResponse{Error: "not authenticated"})
		return
	}
	span.SetAttributes(attribute.String("user.id", authInfo.UserID))

	chat, err := h.chats.CreateChat(ctx, authInfo.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create chat failed")
		slog.Error("create chat failed", "error", err, "user_id", authInfo.UserID)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not create chat"})
		return
	}

	span.SetAttributes(attribute.String("chat.id", chat.ID))
	slog.Info("chat created", "chat_id", chat.ID, "user_id", authInfo.UserID)

	c.JSON(http.StatusCreated, datatypes.CreateChatResponse{
		ChatID:    chat.ID,
		StreamURL: fmt.Sprintf("/v1/chats/%s/stream", chat.ID),
	})
}

// HandleSendMessage accepts one user turn for a chat.
//
// # Description
//
// Handles POST /v1/chats/:id/messages. The turn is persisted first,
// then queued to the chat's worker; a worker is spawned if none is
// live. Persist-then-enqueue means a turn that was acknowledged is
// always in history, even if the worker never consumes it.
//
// # Responses
//
//   - 202: Turn persisted and queued
//   - 400: Empty or oversized content
//   - 401: Caller not authenticated
//   - 404: Chat does not exist or belongs to another user
//   - 429: Worker's inbound queue is full
//   - 500: Persistence failure
//   - 503: Active-session ceiling reached
func (h *chatHandler) HandleSendMessage(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleSendMessage")
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

	var req datatypes.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "content must be non-empty and at most 32KB"})
		return
	}

	// Persist before enqueueing so an acknowledged turn is never lost,
	// even if the session is cancelled before the worker reads it.
	if _, err := h.chats.AppendMessage(ctx, chatID, store.RoleUser, req.Content); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		slog.Error("persist message failed", "error", err, "chat_id", chatID)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not persist message"})
		return
	}

	if err := h.enqueueTurn(chatID, req.Content); err != nil {
		switch {
		case errors.Is(err, session.ErrWorkerLimit):
			c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{Error: "too many active sessions"})
		case errors.Is(err, session.ErrInboundFull):
			c.JSON(http.StatusTooManyRequests, datatypes.ErrorResponse{Error: "session queue is full"})
		default:
			span.RecordError(err)
			slog.Error("enqueue turn failed", "error", err, "chat_id", chatID)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not queue message"})
		}
		return
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordMessageEnqueued()
	}

	c.JSON(http.StatusAccepted, datatypes.AckResponse{OK: true})
}

// enqueueTurn ensures a worker exists and pushes the turn onto its
// inbound queue. A second attempt covers the race where a concurrent
// cancel removes the entry between EnsureWorker and Get.
func (h *chatHandler) enqueueTurn(chatID, content string) error {
	for attempt := 0; attempt < 2; attempt++ {
		if err := h.registry.EnsureWorker(chatID); err != nil {
			return err
		}
		entry, err := h.registry.Get(chatID)
		if err != nil {
			continue
		}
		if err := entry.Channels.PushInbound(session.TokenItem(content)); err != nil {
			return err
		}
		return nil
	}
	return session.ErrNotFound
}

// HandleListMessages returns the chat's persisted history.
//
// # Description
//
// Handles GET /v1/chats/:id/messages. Messages are returned oldest
// first. Assistant turns appear once completed; a turn in flight is
// visible only on the stream.
//
// # Responses
//
//   - 200: ListMessagesResponse
//   - 401: Caller not authenticated
//   - 404: Chat does not exist or belongs to another user
func (h *chatHandler) HandleListMessages(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleListMessages")
	defer span.End()

	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		c.JSON(http.StatusUnauthorized, datatypes.ErrorResponse{Error: "not authenticated"})
		return
	}

	chatID := c.Param("id")
	span.SetAttributes(attribute.String("chat.id", chatID))

	if _, err := h.chats.GetChat(ctx, chatID, authInfo.UserID); err != nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "chat not found"})
		return
	}

	messages, err := h.chats.ListMessages(ctx, chatID)
	if err != nil {
		span.RecordError(err)
		slog.Error("list messages failed", "error", err, "chat_id", chatID)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not load history"})
		return
	}

	views := make([]datatypes.MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, datatypes.MessageView{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, datatypes.ListMessagesResponse{
		ChatID:   chatID,
		Messages: views,
	})
}

// HandleCancelChat cancels the chat's live session.
//
// # Description
//
// Handles POST /v1/chats/:id/cancel. Runs the full cancellation
// sequence and returns only after the worker has fully terminated and
// its registry entry is gone. Idempotent: cancelling a chat with no
// live session succeeds immediately. A later message to the same chat
// starts a fresh session.
//
// # Responses
//
//   - 202: Session cancelled (or no session was live)
//   - 400: Request body present but invalid (oversized reason)
//   - 401: Caller not authenticated
//   - 404: Chat does not exist or belongs to another user
//   - 500: Worker did not terminate before the request deadline
func (h *chatHandler) HandleCancelChat(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleCancelChat")
	defer span.End()

	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		c.JSON(http.StatusUnauthorized, datatypes.ErrorResponse{Error: "not authenticated"})
		return
	}

	chatID := c.Param("id")
	span.SetAttributes(attribute.String("chat.id", chatID))

	if _, err := h.chats.GetChat(ctx, chatID, authInfo.UserID); err != nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "chat not found"})
		return
	}

	// Body is optional; a bare POST cancels too. A body that is
	// present must still pass validation so an oversized reason is
	// never accepted into the logs.
	var req datatypes.CancelChatRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "reason must be at most 32KB"})
			return
		}
	}

	if err := h.registry.Cancel(ctx, chatID, session.TriggerClient); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel failed")
		slog.Error("cancel session failed", "error", err, "chat_id", chatID)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "could not cancel session"})
		return
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordCancellation(string(session.TriggerClient))
	}
	slog.Info("session cancelled",
		"chat_id", chatID,
		"trigger", string(session.TriggerClient),
		"reason", req.Reason,
	)

	c.JSON(http.StatusAccepted, datatypes.AckResponse{OK: true})
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ ChatHandler = (*chatHandler)(nil)
