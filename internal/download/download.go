// Package download saves message attachments referenced by OOB URLs.
// Downloads are bounded in size and concurrency and land in the
// per-partner files directory under unique names.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/processone/fluux-agent-sub000/internal/httpkit"
)

const (
	// MaxFileSize caps each downloaded file at 25 MiB.
	MaxFileSize int64 = 25 * 1024 * 1024

	// maxConcurrent is the number of downloads in flight across all
	// attachment tasks.
	maxConcurrent = 3

	requestTimeout = 30 * time.Second
	connectTimeout = 10 * time.Second
)

// Category classifies a downloaded file for the LLM.
type Category int

const (
	CategoryImage Category = iota
	CategoryDocument
	CategoryOther
)

func (c Category) String() string {
	switch c {
	case CategoryImage:
		return "image"
	case CategoryDocument:
		return "document"
	default:
		return "other"
	}
}

// File describes one stored download.
type File struct {
	Path         string
	OrigFilename string
	MediaType    string
	SizeBytes    int64
	Category     Category
}

// Downloader fetches attachment URLs. It is shared across attachment
// tasks; the semaphore bounds total concurrency.
type Downloader struct {
	client *http.Client
	sem    chan struct{}
	logger *slog.Logger
}

// New creates a Downloader.
func New(logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		client: httpkit.NewClient(
			httpkit.WithTimeout(requestTimeout),
			httpkit.WithConnectTimeout(connectTimeout),
		),
		sem:    make(chan struct{}, maxConcurrent),
		logger: logger,
	}
}

// Fetch downloads rawURL into dir. Only HTTPS URLs are accepted,
// except for loopback hosts which may use plain HTTP.
func (d *Downloader) Fetch(ctx context.Context, rawURL, dir string) (*File, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "https" && !isLoopback(u.Hostname()) {
		return nil, fmt.Errorf("refusing non-HTTPS url %q", rawURL)
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-d.sem }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", resp.ContentLength, MaxFileSize)
	}

	origName := path.Base(u.Path)
	if origName == "/" || origName == "." || origName == "" {
		origName = "download"
	}

	mediaType := mediaTypeFor(resp.Header.Get("Content-Type"), origName)
	dest := filepath.Join(dir, uuid.NewString()+"_"+Sanitize(origName))

	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	// Read one byte past the cap so oversized bodies without a
	// Content-Length header are caught too.
	n, err := io.Copy(f, io.LimitReader(resp.Body, MaxFileSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("save file: %w", err)
	}
	if n > MaxFileSize {
		os.Remove(dest)
		return nil, fmt.Errorf("file too large: exceeds %d bytes", MaxFileSize)
	}

	d.logger.Debug("stored attachment", "url", rawURL, "path", dest, "bytes", n, "media_type", mediaType)

	return &File{
		Path:         dest,
		OrigFilename: origName,
		MediaType:    mediaType,
		SizeBytes:    n,
		Category:     Categorize(mediaType),
	}, nil
}

func isLoopback(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// extTypes maps filename extensions used when the server sends no
// usable Content-Type.
var extTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
}

func mediaTypeFor(contentType, filename string) string {
	ct := strings.TrimSpace(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if mt, ok := extTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Categorize maps a media type to the LLM-facing category.
func Categorize(mediaType string) Category {
	switch mediaType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return CategoryImage
	case "application/pdf":
		return CategoryDocument
	}
	return CategoryOther
}

// Sanitize keeps alphanumerics, '.', '-', '_' and replaces everything
// else with '_'.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
