// Package montage compiles a resolved plan into the final video.
//
// Matched clips are normalized to the output format and fallbacks become
// short black blanks. When the content is shorter than the target a single
// pad blank is appended. Everything is joined in one concat pass, optionally
// replacing the soundtrack. Durations come from metadata, never from
// re-reading the output.
package montage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/clip"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/logging"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/media"
)

// BlankSeconds is the length of the placeholder rendered for a fallback.
const BlankSeconds = 2.0

// minPadSeconds ignores shortfalls too small to render as a frame.
const minPadSeconds = 1.0 / media.OutputFrameRate

// ErrEmptyPlan is returned for a plan without clips. No file is written.
var ErrEmptyPlan = errors.New("empty montage plan")

// EventKind labels one segment of the compiled montage.
type EventKind string

const (
	EventClip     EventKind = "clip"
	EventFallback EventKind = "fallback"
	EventPadding  EventKind = "padding"
)

// Event is one segment of the output timeline, in order.
type Event struct {
	Kind     EventKind `json:"kind"`
	VideoID  string    `json:"video_id,omitempty"`
	ClipPath string    `json:"clip_path,omitempty"`
	SourceIn float64   `json:"source_in,omitempty"`
	Text     string    `json:"text,omitempty"`
	Seconds  float64   `json:"seconds"`
}

// Result describes the written montage.
type Result struct {
	OutputPath     string  `json:"output_path"`
	SegmentCount   int     `json:"segment_count"`
	ContentSeconds float64 `json:"content_seconds"`
	PaddingSeconds float64 `json:"padding_seconds"`
	TargetSeconds  float64 `json:"target_seconds"`
	Events         []Event `json:"events"`
}

// TotalSeconds is the expected output length.
func (r Result) TotalSeconds() float64 { return r.ContentSeconds + r.PaddingSeconds }

// Compiler builds montages with a media codec.
type Compiler struct {
	codec  media.Codec
	logger *slog.Logger
}

// NewCompiler creates a compiler.
func NewCompiler(codec media.Codec, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Compiler{codec: codec, logger: logging.WithComponent(logger, "montage")}
}

// Compile writes plan to outputPath. It never truncates content longer than
// the target.
func (c *Compiler) Compile(ctx context.Context, plan clip.Plan, outputPath string) (*Result, error) {
	if len(plan.Clips) == 0 {
		return nil, ErrEmptyPlan
	}
	if plan.HasAudio() {
		if _, err := os.Stat(plan.AudioPath); err != nil {
			return nil, fmt.Errorf("audio track: %w", err)
		}
	}

	outDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	work, err := os.MkdirTemp(outDir, ".ghostvid-segments-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	res := &Result{OutputPath: outputPath, TargetSeconds: plan.TargetSeconds}
	segments := make([]string, 0, len(plan.Clips)+1)

	for i, rc := range plan.Clips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seg := filepath.Join(work, fmt.Sprintf("seg_%04d%s", i, media.SegmentExtension))

		ev, err := c.segment(ctx, rc, seg)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		segments = append(segments, seg)
		res.Events = append(res.Events, ev)
		res.ContentSeconds += ev.Seconds
	}

	if pad := plan.TargetSeconds - res.ContentSeconds; pad >= minPadSeconds {
		seg := filepath.Join(work, "seg_pad"+media.SegmentExtension)
		if err := c.codec.Blank(ctx, seg, pad); err != nil {
			return nil, fmt.Errorf("padding: %w", err)
		}
		segments = append(segments, seg)
		res.Events = append(res.Events, Event{Kind: EventPadding, Seconds: pad})
		res.PaddingSeconds = pad
	}

	if err := c.codec.Concat(ctx, segments, plan.AudioPath, outputPath); err != nil {
		os.Remove(outputPath)
		return nil, fmt.Errorf("concat: %w", err)
	}
	res.SegmentCount = len(segments)

	c.logger.Info("montage compiled",
		"output", logging.SanitizePath(outputPath),
		"segments", res.SegmentCount,
		"content_seconds", res.ContentSeconds,
		"padding_seconds", res.PaddingSeconds,
		"target_seconds", res.TargetSeconds,
		"audio", plan.HasAudio(),
	)
	return res, nil
}

// segment renders one plan entry into dst. A matched clip that cannot be
// normalized is replaced by a blank so the timeline keeps one event per unit.
func (c *Compiler) segment(ctx context.Context, rc clip.ResolvedClip, dst string) (Event, error) {
	if rc.IsMatched() {
		err := c.codec.Normalize(ctx, rc.LocalPath, dst)
		if err == nil {
			return Event{
				Kind:     EventClip,
				VideoID:  rc.SourceVideoID,
				ClipPath: rc.LocalPath,
				SourceIn: rc.StartSeconds,
				Seconds:  c.clipSeconds(ctx, rc),
			}, nil
		}
		if ctx.Err() != nil {
			return Event{}, ctx.Err()
		}
		c.logger.Warn("normalize failed, using blank", "video_id", rc.SourceVideoID, "error", err)
	}

	if err := c.codec.Blank(ctx, dst, BlankSeconds); err != nil {
		return Event{}, err
	}
	return Event{Kind: EventFallback, VideoID: rc.SourceVideoID, Text: rc.OriginatingText, Seconds: BlankSeconds}, nil
}

// clipSeconds prefers the probed length and falls back to the matched range.
func (c *Compiler) clipSeconds(ctx context.Context, rc clip.ResolvedClip) float64 {
	p, err := c.codec.Probe(ctx, rc.LocalPath)
	if err != nil || p.Duration <= 0 {
		return rc.Seconds()
	}
	return p.Duration
}
