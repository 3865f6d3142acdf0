// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request and response structures for the
// orchestrator's chat endpoints.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message
	// content. Checked as bytes, not runes, to bound memory use.
	MaxMessageContentBytes = 32 * 1024 // 32KB
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes.
//
// # Inputs
//
//   - fl: Validator field level containing the string to validate
//
// # Outputs
//
//   - bool: true if content <= 32KB, false otherwise
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Request Types
// =============================================================================

// SendMessageRequest is the body for posting a user turn to a chat.
//
// # Description
//
// The content is persisted and queued for the chat's worker before
// the endpoint returns. Content must be non-empty after JSON binding
// and no larger than 32KB.
//
// # Validation
//
// Uses go-playground/validator:
//   - Content: required, max 32768 bytes (custom maxbytes validator)
//
// # Examples
//
//	req := SendMessageRequest{Content: "hello"}
//	if err := req.Validate(); err != nil { ... }
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,maxbytes"`
}

// Validate validates the SendMessageRequest fields. Call after
// binding the JSON body.
//
// # Outputs
//
//   - error: Non-nil if validation failed, with details about which field
func (r *SendMessageRequest) Validate() error {
	return chatValidate.Struct(r)
}

// CancelChatRequest is the (optional) body for the cancel endpoint.
// The reason is recorded in logs only; an empty body is accepted.
type CancelChatRequest struct {
	Reason string `json:"reason" validate:"omitempty,maxbytes"`
}

// Validate validates the CancelChatRequest fields.
func (r *CancelChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Response Types
// =============================================================================

// CreateChatResponse is returned by POST /v1/chats.
//
// # Fields
//
//   - ChatID: Server-generated chat identifier (UUID v4).
//   - StreamURL: Relative URL of the chat's SSE stream endpoint.
type CreateChatResponse struct {
	ChatID    string `json:"chat_id"`
	StreamURL string `json:"stream_url"`
}

// AckResponse is a minimal acknowledgement body used by the message
// and cancel endpoints.
type AckResponse struct {
	OK bool `json:"ok"`
}

// MessageView is one persisted message as returned by the history
// endpoint.
//
// # Fields
//
//   - ID: Message identifier (UUID v4).
//   - Role: "user" or "assistant".
//   - Content: Full message text.
//   - CreatedAt: Unix timestamp in milliseconds (UTC).
type MessageView struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// ListMessagesResponse is returned by GET /v1/chats/:id/messages.
type ListMessagesResponse struct {
	ChatID   string        `json:"chat_id"`
	Messages []MessageView `json:"messages"`
}

// ErrorResponse is the uniform error body for chat endpoints. Error
// text is sanitized; internal details stay in logs.
type ErrorResponse struct {
	Error string `json:"error"`
}
