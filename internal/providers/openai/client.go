// Package openai adapts OpenAI-compatible chat completion APIs to providers.Generator.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"visibility-backend/internal/providers"
	"visibility-backend/internal/shared/telemetry"
)

const defaultSystemPrompt = "You are a helpful assistant. Answer the user's question directly with concrete recommendations."

// Config configures a Client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// SearchModel is used instead of Model when a request asks for web search.
	SearchModel string
	HTTPClient  *http.Client
}

// Client implements providers.Generator using Chat Completions.
type Client struct {
	client      *goopenai.Client
	model       string
	searchModel string
}

// NewClient constructs a new OpenAI-compatible client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required for OpenAI")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required for OpenAI")
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		oc.BaseURL = strings.TrimRight(base, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return &Client{
		client:      goopenai.NewClientWithConfig(oc),
		model:       cfg.Model,
		searchModel: strings.TrimSpace(cfg.SearchModel),
	}, nil
}

// Generate sends one chat completion.
func (c *Client) Generate(ctx context.Context, req providers.Request) (providers.Response, error) {
	model := c.model
	if strings.TrimSpace(req.Model) != "" {
		model = req.Model
	}
	if req.WebSearch && c.searchModel != "" {
		model = c.searchModel
	}
	system := req.System
	if strings.TrimSpace(system) == "" {
		system = defaultSystemPrompt
	}

	chatReq := goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.JSON {
		chatReq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
		if !isGPT5(model) {
			chatReq.Temperature = 0
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return providers.Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return providers.Response{}, fmt.Errorf("openai response missing choices")
	}

	out := providers.Response{
		Text:  strings.TrimSpace(resp.Choices[0].Message.Content),
		Model: resp.Model,
		Usage: &providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	telemetry.Debug("llm.response", map[string]any{
		"vendor":            "openai",
		"model":             out.Model,
		"finish_reason":     string(resp.Choices[0].FinishReason),
		"prompt_tokens":     out.Usage.PromptTokens,
		"completion_tokens": out.Usage.CompletionTokens,
	})
	return out, nil
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var _ providers.Generator = (*Client)(nil)
