package llm

import (
	"strings"
)

// NewOllamaClient talks to Ollama through its OpenAI-compatible endpoint,
// which gives JSON mode and usage reporting for free.
func NewOllamaClient(model string, baseURL string, maxTokens int) *OpenAIClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	// The key is ignored by Ollama but the client insists on one.
	return NewOpenAIClient("ollama", model, baseURL, maxTokens)
}
