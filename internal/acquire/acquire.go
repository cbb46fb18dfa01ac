// Package acquire turns a matched (video, time range) into a local clip file.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/logging"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/media"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/quota"
)

// Kind classifies an acquisition failure.
type Kind string

const (
	SourceUnavailable Kind = "source_unavailable"
	ProcessingFailed  Kind = "processing_failed"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrProcessingFailed  = errors.New("processing failed")
	// ErrQuotaDenied is the cause of a SourceUnavailable error raised before any fetch.
	ErrQuotaDenied = errors.New("quota denied")
)

// AcquisitionError reports why a clip could not be produced.
type AcquisitionError struct {
	Kind    Kind
	VideoID string
	Err     error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %s: %v", e.VideoID, e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Is matches ErrSourceUnavailable and ErrProcessingFailed by kind.
func (e *AcquisitionError) Is(target error) bool {
	switch target {
	case ErrSourceUnavailable:
		return e.Kind == SourceUnavailable
	case ErrProcessingFailed:
		return e.Kind == ProcessingFailed
	}
	return false
}

// SourceFetcher downloads a full source video into destDir.
type SourceFetcher interface {
	Fetch(ctx context.Context, videoID, destDir string) (string, error)
}

// Acquirer fetches sources into private scratch slots and extracts clips from them.
type Acquirer struct {
	quota      *quota.Tracker
	fetcher    SourceFetcher
	codec      media.Codec
	scratchDir string
	clipsDir   string
	logger     *slog.Logger
}

// New creates an acquirer. Clips are written to clipsDir; scratchDir holds
// one short-lived slot per acquisition.
func New(q *quota.Tracker, fetcher SourceFetcher, codec media.Codec, scratchDir, clipsDir string, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Acquirer{
		quota:      q,
		fetcher:    fetcher,
		codec:      codec,
		scratchDir: scratchDir,
		clipsDir:   clipsDir,
		logger:     logging.WithComponent(logger, "acquire"),
	}
}

// ClipName returns the file name used for a clip of videoID starting at
// start seconds. tag tells apart acquisitions of the same range.
func ClipName(videoID string, start float64, tag string) string {
	if len(tag) > 8 {
		tag = tag[:8]
	}
	return fmt.Sprintf("clip_%s_%d_%s%s", videoID, int64(math.Round(start*1000)), tag, media.SegmentExtension)
}

// Acquire charges one source-fetch unit, downloads videoID and extracts
// [start, end] into the clips dir. It returns the clip path.
func (a *Acquirer) Acquire(ctx context.Context, videoID string, start, end float64) (string, error) {
	if end <= start {
		return "", &AcquisitionError{Kind: ProcessingFailed, VideoID: videoID,
			Err: fmt.Errorf("empty range %.3f-%.3f", start, end)}
	}
	if !a.quota.Charge(quota.KindSourceFetch) {
		return "", &AcquisitionError{Kind: SourceUnavailable, VideoID: videoID, Err: ErrQuotaDenied}
	}

	id := uuid.NewString()
	slot := filepath.Join(a.scratchDir, id)
	if err := os.MkdirAll(slot, 0755); err != nil {
		return "", &AcquisitionError{Kind: ProcessingFailed, VideoID: videoID, Err: fmt.Errorf("create scratch slot: %w", err)}
	}
	defer func() {
		if err := os.RemoveAll(slot); err != nil {
			a.logger.Warn("failed to free scratch slot", "slot", logging.SanitizePath(slot), "error", err)
		}
	}()

	src, err := a.fetcher.Fetch(ctx, videoID, slot)
	if err != nil {
		return "", &AcquisitionError{Kind: SourceUnavailable, VideoID: videoID, Err: err}
	}

	if err := os.MkdirAll(a.clipsDir, 0755); err != nil {
		return "", &AcquisitionError{Kind: ProcessingFailed, VideoID: videoID, Err: fmt.Errorf("create clips dir: %w", err)}
	}
	dst := filepath.Join(a.clipsDir, ClipName(videoID, start, id))
	if err := a.codec.Extract(ctx, src, dst, start, end); err != nil {
		os.Remove(dst)
		return "", &AcquisitionError{Kind: ProcessingFailed, VideoID: videoID, Err: err}
	}

	a.logger.Info("clip acquired",
		"video_id", videoID,
		"start", start,
		"end", end,
		"path", logging.SanitizePath(dst),
	)
	return dst, nil
}
