// Package playback serves local media files with HTTP Range support.
package playback

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type PlaybackService interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error
}

// fallbackTypes covers extensions the platform mime table may not know.
var fallbackTypes = map[string]string{
	".mp4": "video/mp4",
	".m4a": "audio/mp4",
	".edl": "text/plain; charset=utf-8",
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	if t, ok := fallbackTypes[ext]; ok {
		return t
	}
	return "application/octet-stream"
}

// ServeFile writes filePath, honoring a single byte range. HEAD requests
// get headers only.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}

	size := stat.Size()
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentTypeFor(filePath))
	w.Header().Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "no-cache")

	parsedRange, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case err == ErrUnsatisfiable:
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err == ErrInvalidRange:
		// malformed ranges are ignored and the whole file is sent
		parsedRange = nil
	case err != nil:
		return err
	}

	headOnly := r.Method == http.MethodHead

	if parsedRange == nil {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
		w.WriteHeader(http.StatusOK)
		if !headOnly {
			s.copy(w, file, size, time.Now())
		}
		return nil
	}

	w.Header().Set("Content-Length", fmt.Sprintf("%d", parsedRange.ContentLength()))
	w.Header().Set("Content-Range", parsedRange.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if headOnly {
		return nil
	}

	if _, err := file.Seek(parsedRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	s.copy(w, file, parsedRange.ContentLength(), time.Now())
	return nil
}

func (s *Server) copy(w io.Writer, r io.Reader, n int64, start time.Time) {
	written, err := io.CopyN(w, r, n)
	if err != nil && s.logger != nil {
		// clients routinely abort media requests mid-stream
		s.logger.Debug("playback copy ended early", "written", written, "want", n, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
	}
}
