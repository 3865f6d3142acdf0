// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store provides the durable chat persistence collaborator.
//
// The streaming subsystem persists a message before enqueueing it for
// the worker and records the assistant's completed turn afterwards;
// everything else about storage (schema, backend, retention) is
// outside the subsystem and hidden behind the ChatStore interface.
// MemoryStore is the reference implementation used by the default
// deployment and by tests.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Roles
// =============================================================================

// Message roles as persisted. They match the responder's turn roles so
// history rows feed the model without translation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrNotFound is returned when no chat exists for the given ID, or
	// when the requester does not own it. Owner mismatches map to the
	// same error on purpose so that existence is not leaked.
	ErrNotFound = errors.New("store: chat not found")
)

// =============================================================================
// Records
// =============================================================================

// Chat is the durable record of one conversation thread.
//
// # Fields
//
//   - ID: Unique chat identifier (UUID v4), the registry key upstream.
//   - OwnerID: Identifier of the user allowed to send and cancel.
//   - CreatedAt: Unix timestamp in milliseconds.
type Chat struct {
	ID        string `json:"chat_id"`
	OwnerID   string `json:"owner_id"`
	CreatedAt int64  `json:"created_at"`
}

// Message is one persisted conversation message.
//
// # Fields
//
//   - ID: Unique message identifier (UUID v4).
//   - ChatID: Owning chat.
//   - Role: "user" or "assistant".
//   - Content: Message text.
//   - CreatedAt: Unix timestamp in milliseconds, used for ordering.
type Message struct {
	ID        string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// =============================================================================
// Interface Definition
// =============================================================================

// ChatStore defines the persistence contract the streaming subsystem
// relies on.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the ingress
// handler, the cancel handler, and every worker goroutine call into
// the store concurrently.
type ChatStore interface {
	// CreateChat persists a new chat owned by ownerID.
	CreateChat(ctx context.Context, ownerID string) (*Chat, error)

	// GetChat returns the chat if it exists and is owned by ownerID.
	// Unknown IDs and owner mismatches both return ErrNotFound.
	GetChat(ctx context.Context, chatID, ownerID string) (*Chat, error)

	// AppendMessage persists one message on the chat's history.
	AppendMessage(ctx context.Context, chatID, role, content string) (*Message, error)

	// ListMessages returns the chat's messages in send order.
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
}

// =============================================================================
// In-Memory Implementation
// =============================================================================

// MemoryStore is a map-backed ChatStore.
//
// # Thread Safety
//
// Guarded by a single RWMutex; reads take the shared lock.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[string]*Chat
	messages map[string][]Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[string]*Chat),
		messages: make(map[string][]Message),
	}
}

// CreateChat persists a new chat owned by ownerID.
func (s *MemoryStore) CreateChat(_ context.Context, ownerID string) (*Chat, error) {
	chat := &Chat{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		CreatedAt: time.Now().UnixMilli(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = chat
	return chat, nil
}

// GetChat returns the chat if it exists and is owned by ownerID.
func (s *MemoryStore) GetChat(_ context.Context, chatID, ownerID string) (*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok || chat.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return chat, nil
}

// AppendMessage persists one message on the chat's history.
func (s *MemoryStore) AppendMessage(_ context.Context, chatID, role, content string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return nil, ErrNotFound
	}

	msg := Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UnixMilli(),
	}
	s.messages[chatID] = append(s.messages[chatID], msg)
	return &msg, nil
}

// ListMessages returns the chat's messages in send order.
func (s *MemoryStore) ListMessages(_ context.Context, chatID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.chats[chatID]; !ok {
		return nil, ErrNotFound
	}

	msgs := make([]Message, len(s.messages[chatID]))
	copy(msgs, s.messages[chatID])
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt < msgs[j].CreatedAt
	})
	return msgs, nil
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ ChatStore = (*MemoryStore)(nil)
