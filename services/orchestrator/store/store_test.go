// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CreateChat / GetChat Tests
// =============================================================================

func TestMemoryStore_CreateChat_AssignsIDAndOwner(t *testing.T) {
	s := NewMemoryStore()

	chat, err := s.CreateChat(context.Background(), "alice")
	require.NoError(t, err)

	assert.NotEmpty(t, chat.ID)
	assert.Equal(t, "alice", chat.OwnerID)
	assert.Greater(t, chat.CreatedAt, int64(0))
}

func TestMemoryStore_GetChat_ReturnsOwnedChat(t *testing.T) {
	s := NewMemoryStore()
	created, err := s.CreateChat(context.Background(), "alice")
	require.NoError(t, err)

	got, err := s.GetChat(context.Background(), created.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestMemoryStore_GetChat_UnknownIDReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetChat(context.Background(), "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

// Owner mismatches return the same error as missing chats so that
// chat existence is not leaked across users.
func TestMemoryStore_GetChat_OwnerMismatchReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	created, err := s.CreateChat(context.Background(), "alice")
	require.NoError(t, err)

	_, err = s.GetChat(context.Background(), created.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// AppendMessage / ListMessages Tests
// =============================================================================

func TestMemoryStore_AppendMessage_UnknownChatReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.AppendMessage(context.Background(), "missing", RoleUser, "hello")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListMessages_OldestFirst(t *testing.T) {
	s := NewMemoryStore()
	chat, err := s.CreateChat(context.Background(), "alice")
	require.NoError(t, err)

	_, err = s.AppendMessage(context.Background(), chat.ID, RoleUser, "question")
	require.NoError(t, err)
	_, err = s.AppendMessage(context.Background(), chat.ID, RoleAssistant, "answer")
	require.NoError(t, err)
	_, err = s.AppendMessage(context.Background(), chat.ID, RoleUser, "followup")
	require.NoError(t, err)

	msgs, err := s.ListMessages(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, "question", msgs[0].Content)
	assert.Equal(t, "answer", msgs[1].Content)
	assert.Equal(t, "followup", msgs[2].Content)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
}

func TestMemoryStore_ListMessages_EmptyChat(t *testing.T) {
	s := NewMemoryStore()
	chat, err := s.CreateChat(context.Background(), "alice")
	require.NoError(t, err)

	msgs, err := s.ListMessages(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryStore_ListMessages_UnknownChatReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.ListMessages(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestMemoryStore_ConcurrentAppendsAllLand(t *testing.T) {
	s := NewMemoryStore()
	chat, err := s.CreateChat(context.Background(), "alice")
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.AppendMessage(context.Background(), chat.ID, RoleUser, fmt.Sprintf("msg-%d", n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := s.ListMessages(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, writers)
}
