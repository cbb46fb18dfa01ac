// Package media wraps the external media tools (ffmpeg, ffprobe, yt-dlp):
// subprocess execution with bounded diagnostics, probing, clip extraction,
// blank rendering and the final concatenation pass.
package media

import "time"

// Montage output format. Every segment is normalized to it before concatenation.
const (
	OutputWidth      = 1280
	OutputHeight     = 720
	OutputFrameRate  = 30
	AudioSampleRate  = 44100
	AudioChannels    = 2
	VideoCodec       = "libx264"
	AudioCodec       = "aac"
	PixelFormat      = "yuv420p"
	BlankColor       = "black"
	SegmentExtension = ".mp4"
)

// RunResult is the structured outcome of executing a subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// ProbeResult is the subset of ffprobe output the compiler needs.
type ProbeResult struct {
	Duration   float64
	Width      int
	Height     int
	Codec      string
	FrameRate  float64
	HasAudio   bool
	AudioCodec string
}

// ToolInfo represents the availability of one executable.
type ToolInfo struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities reports which tools the pipeline can use.
type Capabilities struct {
	Tools    map[string]ToolInfo `json:"tools"`
	ProbedAt time.Time           `json:"probed_at"`
}

// Has reports whether a named tool was found.
func (c *Capabilities) Has(name string) bool {
	if c == nil {
		return false
	}
	t, ok := c.Tools[name]
	return ok && t.Available
}

// Ready reports whether every tool a montage run needs is present.
func (c *Capabilities) Ready() bool {
	return c.Has(ToolFFmpeg) && c.Has(ToolFFprobe) && c.Has(ToolYTDLP)
}

// Tool names as reported in Capabilities.
const (
	ToolFFmpeg  = "ffmpeg"
	ToolFFprobe = "ffprobe"
	ToolYTDLP   = "yt-dlp"
)

// Err returns nil on success, otherwise a *ToolError naming tool.
func (r RunResult) Err(tool string) error { return resultErr(tool, r) }
