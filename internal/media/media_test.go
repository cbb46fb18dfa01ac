package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeExecutor struct {
	runCalls    atomic.Int32
	outputCalls atomic.Int32

	lastName string
	lastArgs []string

	runFn    func(name string, args []string) RunResult
	outputFn func(name string, args []string) ([]byte, RunResult)
}

func (f *fakeExecutor) Run(ctx context.Context, outPath, name string, args ...string) RunResult {
	f.runCalls.Add(1)
	f.lastName, f.lastArgs = name, args
	if f.runFn != nil {
		return f.runFn(name, args)
	}
	return RunResult{ExitCode: 0, OutputPath: outPath}
}

func (f *fakeExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, RunResult) {
	f.outputCalls.Add(1)
	f.lastName, f.lastArgs = name, args
	if f.outputFn != nil {
		return f.outputFn(name, args)
	}
	return nil, RunResult{}
}

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
		{127, false},
	}
	for _, tt := range tests {
		r := RunResult{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("RunResult{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got, want := buf.String(), " test data"; got != want {
		t.Errorf("after overflow got %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "...world"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestSubprocess_ExitCodes(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("no sh on PATH: %v", err)
	}
	s := NewSubprocess(testLogger(), false)
	ctx := context.Background()

	ok := s.Run(ctx, "", sh, "-c", "exit 0")
	if !ok.IsSuccess() {
		t.Fatalf("exit 0 reported as %d", ok.ExitCode)
	}

	failed := s.Run(ctx, "", sh, "-c", "echo boom >&2; exit 3")
	if failed.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", failed.ExitCode)
	}
	if !strings.Contains(failed.StderrTail, "boom") {
		t.Errorf("StderrTail = %q, want to contain boom", failed.StderrTail)
	}

	out, res := s.Output(ctx, sh, "-c", "printf hi")
	if !res.IsSuccess() || string(out) != "hi" {
		t.Errorf("Output() = %q, %+v", out, res)
	}
}

func TestSubprocess_MissingBinary(t *testing.T) {
	s := NewSubprocess(testLogger(), false)
	res := s.Run(context.Background(), "", "/nonexistent/ffmpeg999")
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
	if err := resultErr("/nonexistent/ffmpeg999", res); err == nil {
		t.Error("resultErr() = nil for failed run")
	} else {
		var te *ToolError
		if !errors.As(err, &te) || te.Tool != "ffmpeg999" {
			t.Errorf("resultErr() = %v, want *ToolError for ffmpeg999", err)
		}
	}
}

const probeJSON = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "r_frame_rate": "30000/1001", "avg_frame_rate": "30000/1001", "duration": "12.512"},
    {"codec_type": "audio", "codec_name": "aac", "duration": "12.500"}
  ],
  "format": {"duration": "12.600"}
}`

func TestParseProbe(t *testing.T) {
	p, err := parseProbe([]byte(probeJSON))
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if p.Width != 1920 || p.Height != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", p.Width, p.Height)
	}
	if p.Duration != 12.512 {
		t.Errorf("Duration = %v, want stream duration 12.512", p.Duration)
	}
	if p.FrameRate < 29.96 || p.FrameRate > 29.98 {
		t.Errorf("FrameRate = %v, want ~29.97", p.FrameRate)
	}
	if !p.HasAudio || p.AudioCodec != "aac" {
		t.Errorf("audio = %v/%q", p.HasAudio, p.AudioCodec)
	}
}

func TestParseProbe_FormatDurationFallback(t *testing.T) {
	p, err := parseProbe([]byte(`{"streams":[{"codec_type":"video","r_frame_rate":"30/1"}],"format":{"duration":"4.0"}}`))
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if p.Duration != 4.0 || p.FrameRate != 30 || p.HasAudio {
		t.Errorf("parseProbe() = %+v", p)
	}
}

func TestParseProbe_AudioOnly(t *testing.T) {
	p, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3","duration":"120.0"}],"format":{}}`))
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if p.Duration != 120.0 {
		t.Errorf("Duration = %v, want 120", p.Duration)
	}
}

func TestParseProbe_Errors(t *testing.T) {
	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := parseProbe([]byte(`{"streams":[]}`)); err == nil {
		t.Error("expected error for no streams")
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"25", 25},
		{"0/0", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseRate(tt.in); got != tt.want {
			t.Errorf("parseRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func joined(args []string) string { return strings.Join(args, " ") }

func TestExtractGraph_Args(t *testing.T) {
	args := joined(extractGraph("/src.mp4", "/dst.mp4", 2.0, 5.0).GetArgs())
	for _, want := range []string{"-ss 2.000", "-i /src.mp4", "-t 3.000", "libx264", "/dst.mp4"} {
		if !strings.Contains(args, want) {
			t.Errorf("extract args %q missing %q", args, want)
		}
	}
}

func TestBlankGraph_Args(t *testing.T) {
	args := joined(blankGraph("/blank.mp4", 2).GetArgs())
	for _, want := range []string{"lavfi", "color=c=black:s=1280x720:r=30:d=2.000", "anullsrc", "-t 2.000"} {
		if !strings.Contains(args, want) {
			t.Errorf("blank args %q missing %q", args, want)
		}
	}
}

func TestConcatGraph_Args(t *testing.T) {
	plain := joined(concatGraph("/w/list.txt", "", "/out.mp4").GetArgs())
	if !strings.Contains(plain, "concat") || !strings.Contains(plain, "-i /w/list.txt") {
		t.Errorf("concat args %q", plain)
	}
	if strings.Contains(plain, "narration") {
		t.Errorf("concat without audio references an audio file: %q", plain)
	}

	withAudio := joined(concatGraph("/w/list.txt", "/narration.mp3", "/out.mp4").GetArgs())
	if !strings.Contains(withAudio, "-i /narration.mp3") {
		t.Errorf("concat args %q missing audio input", withAudio)
	}
	if !strings.Contains(withAudio, "-c:a aac") {
		t.Errorf("mp3 narration should be encoded to aac: %q", withAudio)
	}
	if strings.Contains(withAudio, "-shortest") {
		t.Errorf("final pass must not truncate: %q", withAudio)
	}
}

func TestAudioCodecFor(t *testing.T) {
	if audioCodecFor("/a/voice.M4A") != "copy" {
		t.Error("m4a should be copied")
	}
	if audioCodecFor("/a/voice.wav") != AudioCodec {
		t.Error("wav should be encoded")
	}
}

func TestWriteConcatList_EscapesQuotes(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	seg := filepath.Join(dir, "it's.mp4")
	if err := writeConcatList(list, []string{seg}); err != nil {
		t.Fatalf("writeConcatList() error = %v", err)
	}
	data, _ := os.ReadFile(list)
	if !strings.Contains(string(data), `it'\''s.mp4`) {
		t.Errorf("list = %q, want escaped quote", data)
	}
}

func TestFFmpeg_ExtractUsesConfiguredBinary(t *testing.T) {
	fe := &fakeExecutor{}
	codec := NewFFmpeg(fe, "/opt/ffmpeg", "", testLogger())

	if err := codec.Extract(context.Background(), "/src.mp4", "/dst.mp4", 1, 4); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if fe.lastName != "/opt/ffmpeg" {
		t.Errorf("binary = %q, want /opt/ffmpeg", fe.lastName)
	}
	if !strings.Contains(joined(fe.lastArgs), "-y") {
		t.Errorf("args %q missing overwrite flag", joined(fe.lastArgs))
	}

	if err := codec.Extract(context.Background(), "/src.mp4", "/dst.mp4", 4, 4); err == nil {
		t.Error("Extract() with empty range should fail")
	}
	if fe.runCalls.Load() != 1 {
		t.Errorf("runCalls = %d, want 1", fe.runCalls.Load())
	}
}

func TestFFmpeg_FailureBecomesToolError(t *testing.T) {
	fe := &fakeExecutor{runFn: func(string, []string) RunResult {
		return RunResult{ExitCode: 1, StderrTail: "Invalid data found"}
	}}
	codec := NewFFmpeg(fe, "", "", testLogger())

	err := codec.Blank(context.Background(), "/b.mp4", 2)
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("Blank() error = %v, want *ToolError", err)
	}
	if !strings.Contains(te.Error(), "Invalid data") {
		t.Errorf("error = %q", te.Error())
	}
}

func TestFFmpeg_NormalizeSilentSource(t *testing.T) {
	fe := &fakeExecutor{outputFn: func(string, []string) ([]byte, RunResult) {
		return []byte(`{"streams":[{"codec_type":"video","duration":"3"}],"format":{}}`), RunResult{}
	}}
	codec := NewFFmpeg(fe, "", "", testLogger())

	if err := codec.Normalize(context.Background(), "/c.mp4", "/n.mp4"); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	args := joined(fe.lastArgs)
	if !strings.Contains(args, "anullsrc") {
		t.Errorf("silent source should get a generated audio track: %q", args)
	}
	if !strings.Contains(args, "scale=1280:720") {
		t.Errorf("args %q missing normalize filter", args)
	}
}

func TestFFmpeg_ConcatRequiresSegments(t *testing.T) {
	codec := NewFFmpeg(&fakeExecutor{}, "", "", testLogger())
	if err := codec.Concat(context.Background(), nil, "", "/out.mp4"); err == nil {
		t.Error("Concat() with no segments should fail")
	}
}

type fakeProber struct {
	calls atomic.Int32
	err   error
}

func (f *fakeProber) Check(ctx context.Context) (*Capabilities, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &Capabilities{
		Tools:    map[string]ToolInfo{ToolFFmpeg: {Available: true}},
		ProbedAt: time.Now(),
	}, nil
}

func TestCachedDoctor_TTL(t *testing.T) {
	fp := &fakeProber{}
	d := NewCachedDoctor(fp, testLogger())
	ctx := context.Background()

	if _, err := d.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := d.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if fp.calls.Load() != 1 {
		t.Errorf("probe calls = %d, want 1 (cached)", fp.calls.Load())
	}

	d.Invalidate()
	if d.Peek() != nil {
		t.Error("Peek() after Invalidate should be nil")
	}
	caps, _ := d.Get(ctx)
	if fp.calls.Load() != 2 {
		t.Errorf("probe calls = %d, want 2 after invalidate", fp.calls.Load())
	}
	if !caps.Has(ToolFFmpeg) || caps.Ready() {
		t.Errorf("caps = %+v, want ffmpeg only", caps)
	}
}

func TestCachedDoctor_StaleOnError(t *testing.T) {
	fp := &fakeProber{}
	d := NewCachedDoctor(fp, testLogger())
	ctx := context.Background()

	first, _ := d.Refresh(ctx)
	fp.err = errors.New("probe exploded")
	got, err := d.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v, want stale cache", err)
	}
	if got != first {
		t.Error("Refresh() should return the stale cached capabilities")
	}
}

func TestDoctor_MissingTool(t *testing.T) {
	d := NewDoctor(&fakeExecutor{}, "/nonexistent/ffmpeg", "/nonexistent/ffprobe", "/nonexistent/yt-dlp")
	caps, err := d.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if caps.Has(ToolFFmpeg) || caps.Has(ToolYTDLP) || caps.Ready() {
		t.Errorf("caps = %+v, want nothing available", caps)
	}
	if caps.Tools[ToolFFprobe].Error == "" {
		t.Error("missing tool should carry an error")
	}
}
