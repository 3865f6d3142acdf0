// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// SendMessageRequest Validation Tests
// =============================================================================

func TestSendMessageRequest_Validate_AcceptsNormalContent(t *testing.T) {
	req := SendMessageRequest{Content: "hello there"}
	assert.NoError(t, req.Validate())
}

func TestSendMessageRequest_Validate_RejectsEmptyContent(t *testing.T) {
	req := SendMessageRequest{Content: ""}
	assert.Error(t, req.Validate())
}

func TestSendMessageRequest_Validate_AcceptsContentAtLimit(t *testing.T) {
	req := SendMessageRequest{Content: strings.Repeat("a", MaxMessageContentBytes)}
	assert.NoError(t, req.Validate())
}

func TestSendMessageRequest_Validate_RejectsOversizedContent(t *testing.T) {
	req := SendMessageRequest{Content: strings.Repeat("a", MaxMessageContentBytes+1)}
	assert.Error(t, req.Validate())
}

// maxbytes counts bytes, not runes, so multibyte text hits the limit
// sooner than its character count suggests.
func TestSendMessageRequest_Validate_CountsBytesNotRunes(t *testing.T) {
	// 4 bytes per rune; a quarter of the limit in runes is 100% in bytes.
	content := strings.Repeat("\U0001F600", MaxMessageContentBytes/4+1)
	req := SendMessageRequest{Content: content}
	assert.Error(t, req.Validate())
}

// =============================================================================
// CancelChatRequest Validation Tests
// =============================================================================

func TestCancelChatRequest_Validate_AcceptsEmptyReason(t *testing.T) {
	req := CancelChatRequest{}
	assert.NoError(t, req.Validate())
}

func TestCancelChatRequest_Validate_RejectsOversizedReason(t *testing.T) {
	req := CancelChatRequest{Reason: strings.Repeat("x", MaxMessageContentBytes+1)}
	assert.Error(t, req.Validate())
}
