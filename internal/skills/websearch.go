package skills

import (
	"context"
	"fmt"

	"github.com/processone/fluux-agent-sub000/internal/search"
)

// WebSearch exposes the search manager as an LLM tool.
type WebSearch struct {
	mgr *search.Manager
}

// NewWebSearch creates the web_search skill.
func NewWebSearch(mgr *search.Manager) *WebSearch {
	return &WebSearch{mgr: mgr}
}

func (s *WebSearch) Name() string { return "web_search" }

func (s *WebSearch) Description() string {
	return "Search the web for current information. Use for questions about recent events, facts you are unsure of, or anything that benefits from up-to-date sources."
}

func (s *WebSearch) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query string.",
			},
			"count": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (1-10). Default: 5.",
			},
		},
		"required": []string{"query"},
	}
}

func (s *WebSearch) Capabilities() []string { return []string{"network"} }

func (s *WebSearch) Execute(ctx context.Context, input map[string]any, _ SkillContext) (string, error) {
	query, _ := input["query"].(string)
	if query == "" {
		return "", fmt.Errorf("web_search: query is required")
	}

	opts := search.Options{}
	if count, ok := input["count"].(float64); ok && count > 0 {
		opts.Count = int(count)
	}

	results, err := s.mgr.Search(ctx, query, opts)
	if err != nil {
		return "", err
	}
	return search.FormatResults(results), nil
}
