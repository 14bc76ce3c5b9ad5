// Package skills defines the capabilities the agent exposes to the
// LLM as tools. Skills are registered once at startup; the registry is
// read-only afterwards and safe for concurrent readers.
package skills

import (
	"context"
	"sort"

	"github.com/processone/fluux-agent-sub000/internal/llm"
)

// SkillContext scopes a skill invocation to one conversation partner.
type SkillContext struct {
	// JID is the bare JID of the conversation partner (or room).
	JID string

	// MemoryRoot is the filesystem path under which per-partner state
	// lives.
	MemoryRoot string
}

// Skill is a named capability the LLM can invoke.
type Skill interface {
	// Name is the unique tool name, [a-z0-9_]+.
	Name() string

	// Description tells the model when to use the skill.
	Description() string

	// InputSchema is the JSON Schema for the skill's input.
	InputSchema() map[string]any

	// Capabilities lists coarse capability tags (e.g. "network",
	// "memory") for the /status summary.
	Capabilities() []string

	// Execute runs the skill. The returned text is fed back to the
	// model as the tool result.
	Execute(ctx context.Context, input map[string]any, sc SkillContext) (string, error)
}

// Registry maps skill names to skills.
type Registry struct {
	skills map[string]Skill
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Register adds a skill. Registering a name twice replaces the earlier
// entry.
func (r *Registry) Register(s Skill) {
	r.skills[s.Name()] = s
}

// Get looks up a skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	s, ok := r.skills[name]
	return s, ok
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	return len(r.skills)
}

// Names returns all skill names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolDefinitions returns the tool definitions for all registered
// skills, sorted by name so the list is deterministic.
func (r *Registry) ToolDefinitions() []llm.ToolDefinition {
	if len(r.skills) == 0 {
		return nil
	}
	defs := make([]llm.ToolDefinition, 0, len(r.skills))
	for _, name := range r.Names() {
		s := r.skills[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        s.Name(),
			Description: s.Description(),
			InputSchema: s.InputSchema(),
		})
	}
	return defs
}
