package skills

import (
	"context"
	"fmt"
)

// KnowledgeStore is the slice of the memory façade the memory skill
// needs. The invocation's SkillContext supplies the JID scope.
type KnowledgeStore interface {
	KnowledgeStore(jid, key, content string) error
	KnowledgeSearch(jid, query string) (string, error)
}

// MemoryNotes lets the LLM persist and recall facts across sessions.
type MemoryNotes struct {
	store KnowledgeStore
}

// NewMemoryNotes creates the memory skill.
func NewMemoryNotes(store KnowledgeStore) *MemoryNotes {
	return &MemoryNotes{store: store}
}

func (s *MemoryNotes) Name() string { return "memory" }

func (s *MemoryNotes) Description() string {
	return "Store or search long-term notes about this conversation partner. Use 'store' to remember a fact worth keeping across sessions, 'search' to recall previously stored facts."
}

func (s *MemoryNotes) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"store", "search"},
				"description": "Whether to store a new note or search existing ones.",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Short label for the note (store only).",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The fact to remember (store only).",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Text to search stored notes for (search only).",
			},
		},
		"required": []string{"action"},
	}
}

func (s *MemoryNotes) Capabilities() []string { return []string{"memory"} }

func (s *MemoryNotes) Execute(_ context.Context, input map[string]any, sc SkillContext) (string, error) {
	action, _ := input["action"].(string)
	switch action {
	case "store":
		key, _ := input["key"].(string)
		content, _ := input["content"].(string)
		if content == "" {
			return "", fmt.Errorf("memory: content is required for store")
		}
		if key == "" {
			key = "note"
		}
		if err := s.store.KnowledgeStore(sc.JID, key, content); err != nil {
			return "", err
		}
		return fmt.Sprintf("Stored note %q.", key), nil
	case "search":
		query, _ := input["query"].(string)
		if query == "" {
			return "", fmt.Errorf("memory: query is required for search")
		}
		return s.store.KnowledgeSearch(sc.JID, query)
	default:
		return "", fmt.Errorf("memory: unknown action %q", action)
	}
}
