package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"photo.png", "photo.png"},
		{"my file (1).pdf", "my_file__1_.pdf"},
		{"weird/..\\name", "weird_..name"},
		{"Ünïcode.txt", "_n_code.txt"},
		{"safe-name_1.2.gif", "safe-name_1.2.gif"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		mediaType string
		want      Category
	}{
		{"image/jpeg", CategoryImage},
		{"image/png", CategoryImage},
		{"image/gif", CategoryImage},
		{"image/webp", CategoryImage},
		{"application/pdf", CategoryDocument},
		{"image/tiff", CategoryOther},
		{"text/plain", CategoryOther},
	}
	for _, tt := range tests {
		if got := Categorize(tt.mediaType); got != tt.want {
			t.Errorf("Categorize(%q) = %v, want %v", tt.mediaType, got, tt.want)
		}
	}
}

func TestMediaTypeFor(t *testing.T) {
	tests := []struct {
		contentType, filename, want string
	}{
		{"image/png", "x.bin", "image/png"},
		{"image/png; charset=binary", "x.bin", "image/png"},
		{"", "photo.JPG", "image/jpeg"},
		{"application/octet-stream", "doc.pdf", "application/pdf"},
		{"", "mystery", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := mediaTypeFor(tt.contentType, tt.filename); got != tt.want {
			t.Errorf("mediaTypeFor(%q, %q) = %q, want %q", tt.contentType, tt.filename, got, tt.want)
		}
	}
}

func TestFetchRejectsPlainHTTP(t *testing.T) {
	d := New(nil)
	if _, err := d.Fetch(context.Background(), "http://example.com/file.png", t.TempDir()); err == nil {
		t.Error("expected error for non-HTTPS url")
	}
}

func TestFetchAllowsLoopbackHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("fake png bytes"))
	}))
	defer srv.Close()

	d := New(nil)
	dir := t.TempDir()
	f, err := d.Fetch(context.Background(), srv.URL+"/pics/cat.png", dir)
	if err != nil {
		t.Fatal(err)
	}
	if f.OrigFilename != "cat.png" || f.MediaType != "image/png" || f.Category != CategoryImage {
		t.Errorf("file = %+v", f)
	}
	if f.SizeBytes != int64(len("fake png bytes")) {
		t.Errorf("size = %d", f.SizeBytes)
	}
	if !strings.HasSuffix(f.Path, "_cat.png") {
		t.Errorf("path = %q, want uuid_cat.png form", f.Path)
	}
	if _, err := os.Stat(f.Path); err != nil {
		t.Errorf("stored file missing: %v", err)
	}
}

func TestFetchRejectsDeclaredOversize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "99999999999")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(nil)
	if _, err := d.Fetch(context.Background(), srv.URL+"/big.bin", t.TempDir()); err == nil {
		t.Error("expected error for oversized Content-Length")
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := New(nil)
	if _, err := d.Fetch(context.Background(), srv.URL+"/gone.png", t.TempDir()); err == nil {
		t.Error("expected error for 404")
	}
}
