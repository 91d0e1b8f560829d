package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/liushuangls/go-anthropic/v2"
)

type ClaudeClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewClaudeClient(apiKey string, model string, baseURL string, maxTokens int) *ClaudeClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	return &ClaudeClient{
		client:    anthropic.NewClient(apiKey, opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (c *ClaudeClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(prompt),
				},
			},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Content) > 0 && resp.Content[0].Text != nil {
		return *resp.Content[0].Text, nil
	}
	return "", fmt.Errorf("no response content")
}

// GenerateJSON has no native schema mode on this API, so the schema is
// appended to the prompt.
func (c *ClaudeClient) GenerateJSON(ctx context.Context, prompt string, schema *jsonschema.Schema) (string, error) {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nRespond with a single JSON object and nothing else.")
	if schema != nil {
		raw, err := json.Marshal(schema)
		if err != nil {
			return "", fmt.Errorf("failed to encode schema: %w", err)
		}
		b.WriteString(" It must validate against this JSON schema:\n")
		b.Write(raw)
	}
	return c.Generate(ctx, b.String())
}
