package skills

import (
	"context"
	"fmt"

	"github.com/processone/fluux-agent-sub000/internal/fetch"
)

// URLFetch exposes page fetching as an LLM tool.
type URLFetch struct {
	fetcher *fetch.Fetcher
}

// NewURLFetch creates the url_fetch skill.
func NewURLFetch(f *fetch.Fetcher) *URLFetch {
	return &URLFetch{fetcher: f}
}

func (s *URLFetch) Name() string { return "url_fetch" }

func (s *URLFetch) Description() string {
	return "Fetch a web page and return its readable text content. Use to read an article or page the user linked or that a search returned."
}

func (s *URLFetch) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch.",
			},
			"max_chars": map[string]any{
				"type":        "integer",
				"description": "Maximum characters of extracted text to return. Default: 50000.",
			},
		},
		"required": []string{"url"},
	}
}

func (s *URLFetch) Capabilities() []string { return []string{"network"} }

func (s *URLFetch) Execute(ctx context.Context, input map[string]any, _ SkillContext) (string, error) {
	rawURL, _ := input["url"].(string)
	if rawURL == "" {
		return "", fmt.Errorf("url_fetch: url is required")
	}

	maxChars := 0
	if mc, ok := input["max_chars"].(float64); ok && mc > 0 {
		maxChars = int(mc)
	}

	result, err := s.fetcher.Fetch(ctx, rawURL, maxChars)
	if err != nil {
		return "", err
	}

	out := result.Content
	if result.Title != "" {
		out = "Title: " + result.Title + "\n\n" + out
	}
	if result.Truncated {
		out += "\n\n[Content truncated]"
	}
	return out, nil
}
