// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// chatProvider implements Provider on top of an OpenAI-compatible chat
// completions API. OpenAI and Mistral share it with different base URLs.
type chatProvider struct {
	name   string
	model  string
	client *openai.Client
}

func newChatProvider(name, defaultBaseURL string, cfg ProviderConfig) *chatProvider {
	conf := openai.DefaultConfig(cfg.APIKey)
	conf.BaseURL = defaultBaseURL
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	conf.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	return &chatProvider{
		name:   name,
		model:  cfg.Model,
		client: openai.NewClientWithConfig(conf),
	}
}

// newOpenAI creates a provider for the OpenAI API.
func newOpenAI(cfg ProviderConfig) *chatProvider {
	return newChatProvider("openai", "https://api.openai.com/v1", cfg)
}

func (p *chatProvider) Name() string { return p.name }

// Generate sends a chat completion request and returns the first choice.
func (p *chatProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &APIError{Provider: p.name, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", &APIError{Provider: p.name, StatusCode: reqErr.HTTPStatusCode, Body: string(reqErr.Body)}
		}
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices returned", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}
