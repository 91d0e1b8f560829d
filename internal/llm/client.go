package llm

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// LLMClient is the plain text-completion capability every provider offers.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// JSONClient is implemented by providers that can be asked for JSON output
// conforming to a schema.
type JSONClient interface {
	GenerateJSON(ctx context.Context, prompt string, schema *jsonschema.Schema) (string, error)
}

type Request struct {
	Prompt string
	// Schema, when set, asks the provider for JSON output of that shape.
	Schema  *jsonschema.Schema
	Timeout time.Duration
}

// Response is the envelope returned by Router.Call. Errors are reported in
// the envelope rather than returned.
type Response struct {
	Success  bool          `json:"success"`
	Content  string        `json:"content,omitempty"`
	Error    string        `json:"error,omitempty"`
	Provider string        `json:"provider,omitempty"`
	Latency  time.Duration `json:"latency"`
}

// Caller is what pipeline stages depend on.
type Caller interface {
	Call(ctx context.Context, req Request) Response
}
