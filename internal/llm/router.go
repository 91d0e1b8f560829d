package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/agenthands/cardgraph/internal/config"
)

const (
	ErrTimeout     = "timeout"
	ErrCircuitOpen = "circuit open"
)

// Observer receives one callback per routed call.
type Observer interface {
	ObserveLLMCall(provider string, success bool, latency time.Duration)
}

// Router wraps a provider client with a per-call timeout and a circuit
// breaker. It implements both LLMClient and Caller.
type Router struct {
	client   LLMClient
	provider string
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
	observer Observer
	logger   *zap.Logger
}

type RouterOption func(*Router)

func WithObserver(o Observer) RouterOption {
	return func(r *Router) { r.observer = o }
}

func WithLogger(l *zap.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

func NewRouter(client LLMClient, provider string, timeout time.Duration, bc config.BreakerConfig, opts ...RouterOption) *Router {
	r := &Router{
		client:   client,
		provider: provider,
		timeout:  timeout,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-" + provider,
		MaxRequests: bc.MaxRequests,
		Interval:    time.Duration(bc.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(bc.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= bc.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("llm circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return r
}

// Call never returns an error; failures are described by the envelope.
func (r *Router) Call(ctx context.Context, req Request) Response {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := r.breaker.Execute(func() (interface{}, error) {
		if req.Schema != nil {
			if jc, ok := r.client.(JSONClient); ok {
				return jc.GenerateJSON(ctx, req.Prompt, req.Schema)
			}
		}
		return r.client.Generate(ctx, req.Prompt)
	})
	latency := time.Since(start)

	resp := Response{Provider: r.provider, Latency: latency}
	if err != nil {
		resp.Error = describe(ctx, err)
		r.logger.Warn("llm call failed",
			zap.String("provider", r.provider),
			zap.Duration("latency", latency),
			zap.Error(err))
	} else {
		resp.Success = true
		resp.Content, _ = out.(string)
	}
	if r.observer != nil {
		r.observer.ObserveLLMCall(r.provider, resp.Success, latency)
	}
	return resp
}

// Generate lets the router stand in wherever a plain LLMClient is expected.
func (r *Router) Generate(ctx context.Context, prompt string) (string, error) {
	resp := r.Call(ctx, Request{Prompt: prompt})
	if !resp.Success {
		return "", fmt.Errorf("llm %s: %s", r.provider, resp.Error)
	}
	return resp.Content, nil
}

func (r *Router) State() string {
	return r.breaker.State().String()
}

func describe(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrCircuitOpen
	default:
		return err.Error()
	}
}
