package downloads

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestDownload verifies a plain download lands on disk intact
func TestDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("spherize-kit-data-"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "kit.zip")
	var reported int64
	err := Download(context.Background(), dest, srv.URL, func(downloaded, total int64) {
		reported = downloaded
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Downloaded %d bytes; want %d", len(got), len(payload))
	}
	if reported != int64(len(payload)) {
		t.Errorf("Final progress report = %d; want %d", reported, len(payload))
	}
}

// TestDownloadResumesPartialFile verifies the Range header picks up where
// a partial file left off
func TestDownloadResumesPartialFile(t *testing.T) {
	payload := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	const have = 10

	var sawRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRange = r.Header.Get("Range")
		if sawRange == "" {
			w.Write(payload)
			return
		}
		var from int
		fmt.Sscanf(sawRange, "bytes=%d-", &from)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", from, len(payload)-1, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[from:])
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "resume.bin")
	if err := os.WriteFile(dest, payload[:have], 0644); err != nil {
		t.Fatalf("Failed to seed partial file: %v", err)
	}

	if err := Download(context.Background(), dest, srv.URL, nil); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	if sawRange != fmt.Sprintf("bytes=%d-", have) {
		t.Errorf("Range header = %q; want %q", sawRange, fmt.Sprintf("bytes=%d-", have))
	}
	got, _ := os.ReadFile(dest)
	if !bytes.Equal(got, payload) {
		t.Errorf("Resumed file = %q; want %q", got, payload)
	}
}

// TestDownloadBadStatus verifies non-2xx responses fail a single attempt
func TestDownloadBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "forbidden.bin")
	err := downloadOnce(context.Background(), dest, srv.URL, nil)
	if err == nil {
		t.Fatal("downloadOnce() should fail on 403")
	}
	if !strings.Contains(err.Error(), "bad status") {
		t.Errorf("error = %v; want bad status", err)
	}
}

// TestDownloadCancelled verifies context cancellation aborts without retries
func TestDownloadCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "cancelled.bin")
	if err := Download(ctx, dest, srv.URL, nil); err == nil {
		t.Error("Download() should fail when the context is already cancelled")
	}
}

func buildZip(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to add %s to zip: %v", name, err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bundle.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write zip: %v", err)
	}
	return path
}

func buildTarGz(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("Failed to add %s to tar: %v", name, err)
		}
		tw.Write([]byte(content))
	}
	tw.Close()
	gz.Close()

	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write tar.gz: %v", err)
	}
	return path
}

// TestExtractZip verifies zip extraction with nested paths
func TestExtractZip(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"kit.json":         `{"name":"test"}`,
		"layers/apple.png": "not-really-a-png",
	})

	dest := t.TempDir()
	if err := Extract(archive, dest, nil); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "kit.json"))
	if err != nil {
		t.Fatalf("kit.json not extracted: %v", err)
	}
	if string(got) != `{"name":"test"}` {
		t.Errorf("kit.json = %q; want %q", got, `{"name":"test"}`)
	}
	if _, err := os.Stat(filepath.Join(dest, "layers", "apple.png")); err != nil {
		t.Errorf("nested file not extracted: %v", err)
	}
}

// TestExtractZipSkipsEscapingPaths verifies entries outside the dest dir
// are ignored
func TestExtractZipSkipsEscapingPaths(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"ok.txt":       "fine",
		"../evil.txt":  "bad",
		"/abs/also.go": "bad",
	})

	parent := t.TempDir()
	dest := filepath.Join(parent, "inner")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}
	if err := Extract(archive, dest, nil); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "ok.txt")); err != nil {
		t.Errorf("ok.txt not extracted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "evil.txt")); err == nil {
		t.Error("entry with ../ escaped the destination directory")
	}
}

// TestExtractTarGz verifies tar.gz extraction
func TestExtractTarGz(t *testing.T) {
	archive := buildTarGz(t, map[string]string{
		"kit.json":      `{"name":"tgz"}`,
		"masks/bg.png":  "mask-bytes",
		"masks/fg.webp": "more-bytes",
	})

	dest := t.TempDir()
	if err := Extract(archive, dest, nil); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	for _, name := range []string{"kit.json", "masks/bg.png", "masks/fg.webp"} {
		if _, err := os.Stat(filepath.Join(dest, name)); err != nil {
			t.Errorf("%s not extracted: %v", name, err)
		}
	}
}

// TestExtractUnsupported verifies unknown formats are rejected
func TestExtractUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.rar")
	os.WriteFile(path, []byte("x"), 0644)
	if err := Extract(path, t.TempDir(), nil); err == nil {
		t.Error("Extract() should reject unsupported formats")
	}
}

// TestExtractFileFromZip verifies single-file extraction by match
func TestExtractFileFromZip(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"lib/other.txt":           "no",
		"lib/libonnxruntime.so.1": "the-library",
	})

	dest := filepath.Join(t.TempDir(), "onnxruntime.so")
	err := ExtractFileFromZip(archive, dest, func(name string) bool {
		return strings.Contains(name, "libonnxruntime.so")
	})
	if err != nil {
		t.Fatalf("ExtractFileFromZip() error = %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "the-library" {
		t.Errorf("extracted = %q; want %q", got, "the-library")
	}

	err = ExtractFileFromZip(archive, dest, func(name string) bool { return false })
	if err == nil {
		t.Error("ExtractFileFromZip() should fail when nothing matches")
	}
}

// TestExtractFileFromTarGz verifies single-file extraction by match
func TestExtractFileFromTarGz(t *testing.T) {
	archive := buildTarGz(t, map[string]string{
		"onnxruntime-linux-x64/lib/libonnxruntime.so.1.22.0": "lib-bytes",
		"onnxruntime-linux-x64/README.md":                    "docs",
	})

	dest := filepath.Join(t.TempDir(), "onnxruntime.so")
	err := ExtractFileFromTarGz(archive, dest, func(name string) bool {
		return strings.Contains(name, "/lib/libonnxruntime.so.")
	})
	if err != nil {
		t.Fatalf("ExtractFileFromTarGz() error = %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "lib-bytes" {
		t.Errorf("extracted = %q; want %q", got, "lib-bytes")
	}
}

// TestIsArchive verifies archive extension detection
func TestIsArchive(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"kit.zip", true},
		{"kit.7z", true},
		{"kit.tar.gz", true},
		{"kit.tgz", true},
		{"kit.json", false},
		{"dir", false},
		{"image.png", false},
	}
	for _, tt := range tests {
		if got := IsArchive(tt.path); got != tt.want {
			t.Errorf("IsArchive(%q) = %v; want %v", tt.path, got, tt.want)
		}
	}
}

// TestFormatBytes verifies humanized sizes
func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q; want %q", tt.bytes, got, tt.want)
		}
	}

	if got := FormatSpeed(2048); got != "2.0 KB/s" {
		t.Errorf("FormatSpeed(2048) = %q; want %q", got, "2.0 KB/s")
	}
}
