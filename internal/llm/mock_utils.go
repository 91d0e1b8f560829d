package llm

import (
	"context"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// MockClient replays queued responses, then falls back to Response/Err.
// Block makes Generate wait for the context to finish.
type MockClient struct {
	mu            sync.Mutex
	Response      string
	ResponseQueue []string
	Err           error
	Block         bool
	Prompts       []string
	JSONCalls     int
}

func (m *MockClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	block := m.Block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.ResponseQueue) > 0 {
		resp := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return resp, nil
	}
	return m.Response, nil
}

func (m *MockClient) GenerateJSON(ctx context.Context, prompt string, _ *jsonschema.Schema) (string, error) {
	m.mu.Lock()
	m.JSONCalls++
	m.mu.Unlock()
	return m.Generate(ctx, prompt)
}

// MockCaller returns a fixed envelope.
type MockCaller struct {
	mu       sync.Mutex
	Response Response
	Requests []Request
}

func (m *MockCaller) Call(ctx context.Context, req Request) Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	return m.Response
}

func (m *MockCaller) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
