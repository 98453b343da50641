package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/irislabs/voice-gateway/internal/memory"
)

// Handler executes one tool call for one user. The returned string goes
// back to the model as the tool message content.
type Handler func(ctx context.Context, userID string, args map[string]any) (string, error)

// Tool pairs the model-facing descriptor with its implementation.
type Tool struct {
	Info *schema.ToolInfo
	Run  Handler
}

// SummaryGenerator produces a fresh prose summary from the user's graph.
// The LLM-backed generator plugs in here; a deterministic fallback is used
// when none is configured.
type SummaryGenerator func(ctx context.Context, userID string) (string, error)

// Registry holds every tool the main model may call.
type Registry struct {
	engine         *memory.Engine
	summarize      SummaryGenerator
	domainEndpoint string

	tools map[string]Tool
	order []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithSummaryGenerator installs the LLM-backed summary regeneration path.
func WithSummaryGenerator(gen SummaryGenerator) Option {
	return func(r *Registry) { r.summarize = gen }
}

// WithDomainEndpoint points the wallet and fleet tools at the game API.
func WithDomainEndpoint(endpoint string) Option {
	return func(r *Registry) { r.domainEndpoint = endpoint }
}

// NewRegistry wires the full tool set against the memory engine.
func NewRegistry(engine *memory.Engine, opts ...Option) *Registry {
	r := &Registry{
		engine: engine,
		tools:  make(map[string]Tool),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.registerMemoryTools()
	r.registerUtilityTools()
	r.registerDomainTools()
	return r
}

func (r *Registry) register(t Tool) {
	r.tools[t.Info.Name] = t
	r.order = append(r.order, t.Info.Name)
}

// Infos returns the descriptors in registration order, for BindTools.
func (r *Registry) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.tools[name].Info)
	}
	return infos
}

// Call decodes the model's JSON arguments and runs the named tool. Tool
// failures are reported as content, not errors, so the model can recover
// in its next turn.
func (r *Registry) Call(ctx context.Context, userID, name, argsJSON string) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return fmt.Sprintf("error: malformed arguments: %v", err), nil
		}
	}

	result, err := tool.Run(ctx, userID, args)
	if err != nil {
		return fmt.Sprintf("error: %v", err), nil
	}
	return result, nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}
