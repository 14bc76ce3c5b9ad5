package skills

import (
	"context"
	"fmt"
	"testing"
)

type stubSkill struct {
	name string
	desc string
}

func (s *stubSkill) Name() string                { return s.name }
func (s *stubSkill) Description() string         { return s.desc }
func (s *stubSkill) InputSchema() map[string]any { return map[string]any{"type": "object"} }
func (s *stubSkill) Capabilities() []string      { return nil }

func (s *stubSkill) Execute(context.Context, map[string]any, SkillContext) (string, error) {
	return "ok", nil
}

func TestRegistrySortedDefinitions(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubSkill{name: "zeta"})
	r.Register(&stubSkill{name: "alpha"})
	r.Register(&stubSkill{name: "mid"})

	defs := r.ToolDefinitions()
	if len(defs) != 3 {
		t.Fatalf("got %d definitions", len(defs))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, w := range want {
		if defs[i].Name != w {
			t.Errorf("defs[%d] = %q, want %q", i, defs[i].Name, w)
		}
	}
}

func TestRegistryReplaceSemantics(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubSkill{name: "echo", desc: "first"})
	r.Register(&stubSkill{name: "echo", desc: "second"})

	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1 (re-registration must replace)", r.Len())
	}
	s, ok := r.Get("echo")
	if !ok || s.Description() != "second" {
		t.Errorf("got %v, want the later registration", s)
	}
}

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	if r.ToolDefinitions() != nil {
		t.Error("empty registry must return nil definitions")
	}
	if _, ok := r.Get("nope"); ok {
		t.Error("lookup in empty registry must fail")
	}
}

type fakeKnowledge struct {
	storedJID, storedKey, storedContent string
	searchResult                        string
}

func (f *fakeKnowledge) KnowledgeStore(jid, key, content string) error {
	f.storedJID, f.storedKey, f.storedContent = jid, key, content
	return nil
}

func (f *fakeKnowledge) KnowledgeSearch(jid, query string) (string, error) {
	if f.searchResult == "" {
		return "", fmt.Errorf("no notes")
	}
	return f.searchResult, nil
}

func TestMemoryNotesStore(t *testing.T) {
	fk := &fakeKnowledge{}
	s := NewMemoryNotes(fk)
	sc := SkillContext{JID: "alice@localhost"}

	out, err := s.Execute(context.Background(), map[string]any{
		"action":  "store",
		"key":     "birthday",
		"content": "March 3rd",
	}, sc)
	if err != nil {
		t.Fatal(err)
	}
	if fk.storedJID != "alice@localhost" || fk.storedKey != "birthday" || fk.storedContent != "March 3rd" {
		t.Errorf("stored = %q/%q/%q", fk.storedJID, fk.storedKey, fk.storedContent)
	}
	if out == "" {
		t.Error("expected confirmation text")
	}
}

func TestMemoryNotesSearch(t *testing.T) {
	fk := &fakeKnowledge{searchResult: "birthday: March 3rd"}
	s := NewMemoryNotes(fk)

	out, err := s.Execute(context.Background(), map[string]any{
		"action": "search",
		"query":  "birthday",
	}, SkillContext{JID: "alice@localhost"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "birthday: March 3rd" {
		t.Errorf("out = %q", out)
	}
}

func TestMemoryNotesInvalidInput(t *testing.T) {
	s := NewMemoryNotes(&fakeKnowledge{})
	cases := []map[string]any{
		{"action": "dance"},
		{"action": "store"},
		{"action": "search"},
		{},
	}
	for _, input := range cases {
		if _, err := s.Execute(context.Background(), input, SkillContext{}); err == nil {
			t.Errorf("input %v: expected error", input)
		}
	}
}

func TestWebSearchRequiresQuery(t *testing.T) {
	s := NewWebSearch(nil)
	if _, err := s.Execute(context.Background(), map[string]any{}, SkillContext{}); err == nil {
		t.Error("expected error for missing query")
	}
}

func TestURLFetchRequiresURL(t *testing.T) {
	s := NewURLFetch(nil)
	if _, err := s.Execute(context.Background(), map[string]any{}, SkillContext{}); err == nil {
		t.Error("expected error for missing url")
	}
}
