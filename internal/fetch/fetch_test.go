package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractReadable(t *testing.T) {
	raw := `<html><head><title>My Page</title><style>body{}</style></head>
<body>
<nav>Home | About</nav>
<h1>Heading</h1>
<p>First paragraph.</p>
<script>alert("x")</script>
<ul><li>one</li><li>two</li></ul>
<footer>copyright</footer>
</body></html>`

	title, text := extractReadable(raw)
	if title != "My Page" {
		t.Errorf("title = %q", title)
	}
	for _, want := range []string{"Heading", "First paragraph.", "one", "two"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
	for _, skip := range []string{"alert", "body{}", "Home | About", "copyright"} {
		if strings.Contains(text, skip) {
			t.Errorf("text must not contain %q:\n%s", skip, text)
		}
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := collapseWhitespace("a   b\n\n\n\nc\t\td")
	if got != "a b\n\nc d" {
		t.Errorf("got %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	s := "héllo wörld"
	got := truncateRunes(s, 5)
	if got != "héllo" {
		t.Errorf("got %q", got)
	}
	if truncateRunes("short", 100) != "short" {
		t.Error("short string must pass through")
	}
}

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><head><title>Hi</title></head><body><p>Hello there</p></body></html>"))
	}))
	defer srv.Close()

	result, err := New().Fetch(context.Background(), srv.URL, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Title != "Hi" {
		t.Errorf("title = %q", result.Title)
	}
	if !strings.Contains(result.Content, "Hello there") {
		t.Errorf("content = %q", result.Content)
	}
	if result.StatusCode != 200 || result.Truncated {
		t.Errorf("result = %+v", result)
	}
}

func TestFetchPlainTextTruncation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	result, err := New().Fetch(context.Background(), srv.URL, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Content) != 10 || !result.Truncated {
		t.Errorf("content len = %d truncated = %v", len(result.Content), result.Truncated)
	}
}

func TestFetchEmptyURL(t *testing.T) {
	if _, err := New().Fetch(context.Background(), "", 0); err == nil {
		t.Error("expected error for empty url")
	}
}
