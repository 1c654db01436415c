package skills

import (
	"sync/atomic"

	"github.com/agentcore/runtime/pkg/models"
)

// snapshot is one immutable view of the derived tool registry.
type snapshot struct {
	tools map[string]models.ToolDefinition
}

// Registry is the read-mostly, copy-on-write {tool_name ->
// ToolDefinition} view derived from the loaded skill set, per spec.md
// §4.5's concurrency model: readers get a stable reference for the
// duration of one tool resolution; writers publish a new snapshot with
// release semantics; no lock is held across tool execution. Implements
// agent.ToolRegistry.
type Registry struct {
	current atomic.Pointer[snapshot]
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(&snapshot{tools: map[string]models.ToolDefinition{}})
	return r
}

// Get resolves one tool against the current snapshot.
func (r *Registry) Get(name string) (models.ToolDefinition, bool) {
	snap := r.current.Load()
	t, ok := snap.tools[name]
	return t, ok
}

// List returns every tool in the current snapshot.
func (r *Registry) List() []models.ToolDefinition {
	snap := r.current.Load()
	out := make([]models.ToolDefinition, 0, len(snap.tools))
	for _, t := range snap.tools {
		out = append(out, t)
	}
	return out
}

// Publish atomically swaps in a brand new snapshot built from skills.
// In-flight agent runs that already hold a reference (via a prior Get/
// List call) are unaffected — there is no tearing, because the old
// snapshot map is never mutated in place.
func (r *Registry) Publish(skillSet map[string]*models.Skill) {
	tools := map[string]models.ToolDefinition{}
	for _, sk := range skillSet {
		for _, t := range sk.Tools {
			tools[t.Name] = t
		}
	}
	r.current.Store(&snapshot{tools: tools})
}
