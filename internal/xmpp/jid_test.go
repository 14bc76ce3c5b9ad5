package xmpp

import "testing"

func TestBare(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@domain/resource", "user@domain"},
		{"user@domain", "user@domain"},
		{"domain", "domain"},
		{"room@conf.test/nick/with/slashes", "room@conf.test"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Bare(tt.in); got != tt.want {
				t.Errorf("Bare(%q) = %q, want %q", tt.in, got, tt.want)
			}
			// Bare is idempotent.
			if got := Bare(Bare(tt.in)); got != tt.want {
				t.Errorf("Bare(Bare(%q)) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResource(t *testing.T) {
	if got := Resource("room@conf.test/alice"); got != "alice" {
		t.Errorf("Resource = %q, want alice", got)
	}
	if got := Resource("user@domain"); got != "" {
		t.Errorf("Resource without slash = %q, want empty", got)
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@example.com/res", "example.com"},
		{"user@example.com", "example.com"},
		{"example.com", "example.com"},
	}
	for _, tt := range tests {
		if got := Domain(tt.in); got != tt.want {
			t.Errorf("Domain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocalpart(t *testing.T) {
	if got := Localpart("bot@localhost/res"); got != "bot" {
		t.Errorf("Localpart = %q, want bot", got)
	}
	if got := Localpart("localhost"); got != "" {
		t.Errorf("Localpart of domain JID = %q, want empty", got)
	}
}
