package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/logging"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/media"
)

var videoIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidVideoID reports whether id looks like a provider video ID.
func ValidVideoID(id string) bool {
	return videoIDRE.MatchString(id)
}

// Downloader fetches whole source videos with yt-dlp.
type Downloader struct {
	exec      media.Executor
	bin       string
	watchBase string
	format    string
	logger    *slog.Logger
}

// NewDownloader creates a downloader running bin (default yt-dlp).
func NewDownloader(exec media.Executor, bin string, logger *slog.Logger) *Downloader {
	if bin == "" {
		bin = media.ToolYTDLP
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Downloader{
		exec:      exec,
		bin:       bin,
		watchBase: WatchBase,
		format:    "best[ext=mp4]/best",
		logger:    logger,
	}
}

// Fetch downloads videoID into destDir and returns the file path.
func (d *Downloader) Fetch(ctx context.Context, videoID, destDir string) (string, error) {
	if !ValidVideoID(videoID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVideoID, videoID)
	}

	template := filepath.Join(destDir, "source.%(ext)s")
	res := d.exec.Run(ctx, template, d.bin,
		"-f", d.format,
		"--no-playlist",
		"--quiet",
		"--no-warnings",
		"--no-progress",
		"-o", template,
		d.watchBase+"/watch?v="+videoID,
	)
	if err := res.Err(d.bin); err != nil {
		return "", fmt.Errorf("download %s: %w", videoID, err)
	}

	matches, err := filepath.Glob(filepath.Join(destDir, "source.*"))
	if err != nil {
		return "", fmt.Errorf("locate download: %w", err)
	}
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.Size() > 0 && filepath.Ext(m) != ".part" {
			d.logger.Debug("source fetched", "video_id", videoID, "path", logging.SanitizePath(m), "duration_ms", res.Duration.Milliseconds())
			return m, nil
		}
	}
	return "", fmt.Errorf("download %s: no output file in %s", videoID, logging.SanitizePath(destDir))
}
