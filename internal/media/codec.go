package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Codec is the media toolkit the acquirer and compiler depend on.
type Codec interface {
	// Probe reads stream metadata.
	Probe(ctx context.Context, path string) (*ProbeResult, error)
	// Extract copies [start, end] seconds of src into dst at the source frame rate and resolution.
	Extract(ctx context.Context, src, dst string, start, end float64) error
	// Normalize re-encodes src to the montage format (1280x720, 30 fps, stereo AAC).
	Normalize(ctx context.Context, src, dst string) error
	// Blank renders a solid black segment of the given length in the montage format.
	Blank(ctx context.Context, dst string, seconds float64) error
	// Concat joins normalized segments in order. A non-empty audioPath replaces the soundtrack.
	Concat(ctx context.Context, segments []string, audioPath, dst string) error
}

// FFmpeg implements Codec by building ffmpeg-go graphs and running them through an Executor.
type FFmpeg struct {
	exec        Executor
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// NewFFmpeg creates a codec using the given tool paths.
func NewFFmpeg(exec Executor, ffmpegPath, ffprobePath string, logger *slog.Logger) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = ToolFFmpeg
	}
	if ffprobePath == "" {
		ffprobePath = ToolFFprobe
	}
	return &FFmpeg{exec: exec, ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	out, res := f.exec.Output(ctx, f.ffprobePath,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		path,
	)
	if err := resultErr(f.ffprobePath, res); err != nil {
		return nil, fmt.Errorf("probe %s: %w", filepath.Base(path), err)
	}
	return parseProbe(out)
}

func (f *FFmpeg) Extract(ctx context.Context, src, dst string, start, end float64) error {
	if end <= start {
		return fmt.Errorf("extract: empty range %.3f-%.3f", start, end)
	}
	return f.run(ctx, dst, extractGraph(src, dst, start, end))
}

func (f *FFmpeg) Normalize(ctx context.Context, src, dst string) error {
	p, err := f.Probe(ctx, src)
	if err != nil {
		f.logger.Debug("probe before normalize failed, assuming audio", "error", err)
		p = &ProbeResult{HasAudio: true}
	}
	return f.run(ctx, dst, normalizeGraph(src, dst, p))
}

func (f *FFmpeg) Blank(ctx context.Context, dst string, seconds float64) error {
	if seconds <= 0 {
		return fmt.Errorf("blank: non-positive duration %.3f", seconds)
	}
	return f.run(ctx, dst, blankGraph(dst, seconds))
}

func (f *FFmpeg) Concat(ctx context.Context, segments []string, audioPath, dst string) error {
	if len(segments) == 0 {
		return fmt.Errorf("concat: no segments")
	}
	listPath := filepath.Join(filepath.Dir(segments[0]), "concat.txt")
	if err := writeConcatList(listPath, segments); err != nil {
		return err
	}
	defer os.Remove(listPath)

	return f.run(ctx, dst, concatGraph(listPath, audioPath, dst))
}

func (f *FFmpeg) run(ctx context.Context, dst string, stream *ffmpeg.Stream) error {
	args := stream.OverWriteOutput().GetArgs()
	res := f.exec.Run(ctx, dst, f.ffmpegPath, args...)
	if err := resultErr(f.ffmpegPath, res); err != nil {
		return err
	}
	return nil
}

func extractGraph(src, dst string, start, end float64) *ffmpeg.Stream {
	return ffmpeg.Input(src, ffmpeg.KwArgs{
		"ss": formatSeconds(start),
	}).Output(dst, ffmpeg.KwArgs{
		"t":        formatSeconds(end - start),
		"c:v":      VideoCodec,
		"c:a":      AudioCodec,
		"pix_fmt":  PixelFormat,
		"preset":   "veryfast",
		"movflags": "+faststart",
	})
}

// normalizeFilter letterboxes any input into the montage frame.
var normalizeFilter = fmt.Sprintf(
	"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=%s,setsar=1,fps=%d",
	OutputWidth, OutputHeight, OutputWidth, OutputHeight, BlankColor, OutputFrameRate,
)

// normalizeGraph gives sources without sound a silent track, cut to the video length,
// so every segment carries the same streams for the concat demuxer.
func normalizeGraph(src, dst string, p *ProbeResult) *ffmpeg.Stream {
	in := ffmpeg.Input(src)

	out := ffmpeg.KwArgs{
		"vf":      normalizeFilter,
		"c:v":     VideoCodec,
		"pix_fmt": PixelFormat,
		"preset":  "veryfast",
		"c:a":     AudioCodec,
		"ar":      AudioSampleRate,
		"ac":      AudioChannels,
	}
	if p.HasAudio {
		return ffmpeg.Output([]*ffmpeg.Stream{in.Video(), in.Audio()}, dst, out)
	}
	if p.Duration > 0 {
		out["t"] = formatSeconds(p.Duration)
	}
	return ffmpeg.Output([]*ffmpeg.Stream{in.Video(), silence().Audio()}, dst, out)
}

func blankGraph(dst string, seconds float64) *ffmpeg.Stream {
	color := ffmpeg.Input(
		fmt.Sprintf("color=c=%s:s=%dx%d:r=%d:d=%s", BlankColor, OutputWidth, OutputHeight, OutputFrameRate, formatSeconds(seconds)),
		ffmpeg.KwArgs{"f": "lavfi"},
	)
	return ffmpeg.Output([]*ffmpeg.Stream{color.Video(), silence().Audio()}, dst, ffmpeg.KwArgs{
		"t":       formatSeconds(seconds),
		"c:v":     VideoCodec,
		"pix_fmt": PixelFormat,
		"preset":  "veryfast",
		"c:a":     AudioCodec,
		"ar":      AudioSampleRate,
		"ac":      AudioChannels,
	})
}

func concatGraph(listPath, audioPath, dst string) *ffmpeg.Stream {
	in := ffmpeg.Input(listPath, ffmpeg.KwArgs{"f": "concat", "safe": "0"})
	if audioPath == "" {
		return in.Output(dst, ffmpeg.KwArgs{"c": "copy", "movflags": "+faststart"})
	}
	audio := ffmpeg.Input(audioPath)
	return ffmpeg.Output([]*ffmpeg.Stream{in.Video(), audio.Audio()}, dst, ffmpeg.KwArgs{
		"c:v":      "copy",
		"c:a":      audioCodecFor(audioPath),
		"movflags": "+faststart",
	})
}

func silence() *ffmpeg.Stream {
	return ffmpeg.Input(
		fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", AudioSampleRate),
		ffmpeg.KwArgs{"f": "lavfi"},
	)
}

// audioCodecFor keeps the supplied track untouched when the mp4 container can hold it as-is.
func audioCodecFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".aac", ".m4a", ".mp4":
		return "copy"
	}
	return AudioCodec
}

func writeConcatList(path string, segments []string) error {
	var b strings.Builder
	for _, s := range segments {
		abs, err := filepath.Abs(s)
		if err != nil {
			return fmt.Errorf("concat list: %w", err)
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}
