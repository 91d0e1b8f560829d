package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/api/option"
)

type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int
}

func NewGeminiClient(ctx context.Context, apiKey string, model string, maxTokens int) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiClient{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, c.generativeModel(), prompt)
}

// GenerateJSON switches the model into JSON output. The jsonschema document
// is not translated into genai.Schema; callers validate the result.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, _ *jsonschema.Schema) (string, error) {
	model := c.generativeModel()
	model.ResponseMIMEType = "application/json"
	return c.generate(ctx, model, prompt)
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) generativeModel() *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.model)
	if c.maxTokens > 0 {
		model.SetMaxOutputTokens(int32(c.maxTokens))
	}
	return model
}

func (c *GeminiClient) generate(ctx context.Context, model *genai.GenerativeModel, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates or content")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text in response")
	}
	return b.String(), nil
}
