// Package llm provides a thin helper over eino's ToolCallingChatModel for
// the single-turn, non-tool-calling invocations used by the Classifier,
// the rerank judge, the eval-queue judge, and plain-text generation.
package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/energy-assistant/internal/provider"
)

// Caller is the minimal capability contract for a ChatModel: invoke with
// messages, get back content text (spec section 9's ChatModel contract).
type Caller interface {
	Call(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ModelCaller adapts an eino model.ToolCallingChatModel to Caller.
type ModelCaller struct {
	Model model.ToolCallingChatModel
}

// NewModelCaller wraps m as a Caller.
func NewModelCaller(m model.ToolCallingChatModel) *ModelCaller {
	return &ModelCaller{Model: m}
}

// Call sends a [system, user] message pair and returns the response
// content string.
func (c *ModelCaller) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}
	resp, err := c.Model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("llm: generate returned nil response")
	}
	return resp.Content, nil
}

var _ Caller = (*ModelCaller)(nil)

// LLMPinger probes an LLM backend's readiness. When a zero-cost
// HealthCheckConfig is available it is used exclusively; otherwise it
// falls back to a single-token Generate call, which consumes tokens.
type LLMPinger struct {
	model       model.ToolCallingChatModel
	healthCheck provider.HealthCheckConfig
	name        string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.ToolCallingChatModel, hc provider.HealthCheckConfig, name string) *LLMPinger {
	return &LLMPinger{model: m, healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend for readiness.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := p.healthCheck.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}

	msgs := []*schema.Message{
		schema.UserMessage("ping"),
	}
	resp, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}
