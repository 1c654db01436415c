package agent

import "github.com/agentcore/runtime/pkg/models"

// ToolRegistry is the read-mostly view the agent loop consults to
// resolve a tool call. The concrete, hot-reloadable implementation is
// internal/skills.Registry; this interface lets the agent loop depend
// only on the shape it needs (spec.md §4.5's "read-mostly snapshot"
// contract), grounded on the Get/AsLLMTools split of
// internal/agent/tool_registry.go's ToolRegistry.
type ToolRegistry interface {
	// Get resolves one tool by name against the current snapshot.
	Get(name string) (models.ToolDefinition, bool)
	// List returns every tool in the current snapshot, for forwarding
	// to the provider as the request's tool list.
	List() []models.ToolDefinition
}

// StaticRegistry is a fixed, non-reloading ToolRegistry, useful for
// tests and for embedding tools that are not skill-provided.
type StaticRegistry struct {
	tools map[string]models.ToolDefinition
}

// NewStaticRegistry builds a StaticRegistry from a tool list.
func NewStaticRegistry(tools []models.ToolDefinition) *StaticRegistry {
	m := make(map[string]models.ToolDefinition, len(tools))
	for _, t := range tools {
		m[t.Name] = t
	}
	return &StaticRegistry{tools: m}
}

func (r *StaticRegistry) Get(name string) (models.ToolDefinition, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *StaticRegistry) List() []models.ToolDefinition {
	out := make([]models.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}
