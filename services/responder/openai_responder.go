// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package responder

import (
	"errors"
	"fmt"
	"io"
	"os"

	"context"

	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// OpenAI-Compatible Backend
// =============================================================================

// OpenAIConfig holds settings for the OpenAI-compatible responder.
//
// # Fields
//
//   - APIKey: Bearer key. Read from OPENAI_API_KEY when empty.
//   - BaseURL: Override for OpenAI-compatible gateways (vLLM,
//     llama.cpp server, LiteLLM). Empty uses api.openai.com.
//   - Model: Chat model name. Default: gpt-4o-mini.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// DefaultOpenAIConfig returns configuration populated from the
// environment.
//
// # Examples
//
//	cfg := responder.DefaultOpenAIConfig()
//	cfg.Model = "gpt-4o"
//	r, err := responder.NewOpenAIResponder(cfg)
func DefaultOpenAIConfig() OpenAIConfig {
	cfg := OpenAIConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   os.Getenv("OPENAI_MODEL"),
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	return cfg
}

// OpenAIResponder streams assistant turns from an OpenAI-compatible
// chat completion endpoint.
type OpenAIResponder struct {
	client *openai.Client
	model  string
}

// NewOpenAIResponder creates a responder from the given configuration.
//
// # Outputs
//
//   - *OpenAIResponder: Ready for StreamTurn calls.
//   - error: Non-nil if no API key is configured.
func NewOpenAIResponder(cfg OpenAIConfig) (*OpenAIResponder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("responder: OPENAI_API_KEY is not set")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIResponder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// StreamTurn implements Responder.
//
// # Description
//
// Opens a chat completion stream and forwards each content delta to
// the callback. A callback abort stops the stream immediately and the
// callback's error is returned unwrapped so the caller can match it
// with errors.Is.
func (r *OpenAIResponder) StreamTurn(ctx context.Context, history []Turn, callback StreamCallback) error {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	stream, err := r.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("open completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive completion chunk: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := callback(delta); err != nil {
			return err
		}
	}
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ Responder = (*OpenAIResponder)(nil)
