package playback

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeMedia(t *testing.T, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	return path
}

func serve(t *testing.T, method, path, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/montage", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rr := httptest.NewRecorder()
	if err := NewServer(nil).ServeFile(rr, req, path); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	return rr
}

func TestServeFile_Full(t *testing.T) {
	path := writeMedia(t, "montage.mp4", 1000)
	rr := serve(t, http.MethodGet, path, "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.Len() != 1000 {
		t.Errorf("body length = %d, want 1000", rr.Body.Len())
	}
	if got := rr.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Content-Type = %q, want video/mp4", got)
	}
	if rr.Header().Get("Accept-Ranges") != "bytes" {
		t.Error("missing Accept-Ranges")
	}
}

func TestServeFile_Range(t *testing.T) {
	path := writeMedia(t, "montage.mp4", 1000)
	rr := serve(t, http.MethodGet, path, "bytes=100-199")

	if rr.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rr.Code)
	}
	if got := rr.Header().Get("Content-Range"); got != "bytes 100-199/1000" {
		t.Errorf("Content-Range = %q", got)
	}
	body := rr.Body.Bytes()
	if len(body) != 100 || body[0] != byte(100%251) {
		t.Errorf("unexpected range body: len=%d first=%d", len(body), body[0])
	}
}

func TestServeFile_Head(t *testing.T) {
	path := writeMedia(t, "montage.mp4", 1000)
	rr := serve(t, http.MethodHead, path, "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("HEAD wrote %d body bytes", rr.Body.Len())
	}
	if rr.Header().Get("Content-Length") != "1000" {
		t.Errorf("Content-Length = %q", rr.Header().Get("Content-Length"))
	}
}

func TestServeFile_Unsatisfiable(t *testing.T) {
	path := writeMedia(t, "montage.mp4", 10)
	rr := serve(t, http.MethodGet, path, "bytes=50-")

	if rr.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rr.Code)
	}
	if got := rr.Header().Get("Content-Range"); got != "bytes */10" {
		t.Errorf("Content-Range = %q", got)
	}
}

func TestServeFile_InvalidRangeServesWholeFile(t *testing.T) {
	path := writeMedia(t, "montage.mp4", 10)
	rr := serve(t, http.MethodGet, path, "items=1-2")

	if rr.Code != http.StatusOK || rr.Body.Len() != 10 {
		t.Fatalf("status = %d, len = %d; want 200 and whole file", rr.Code, rr.Body.Len())
	}
}

func TestServeFile_Missing(t *testing.T) {
	rr := serve(t, http.MethodGet, filepath.Join(t.TempDir(), "nope.mp4"), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestContentTypeFor_EDL(t *testing.T) {
	if got := contentTypeFor("/x/montage.mp4.edl"); got == "application/octet-stream" {
		t.Errorf("contentTypeFor(.edl) = %q", got)
	}
}
