package media

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// Doctor probes the external tools a montage run depends on.
type Doctor struct {
	exec  Executor
	tools map[string]string // tool name -> configured binary
}

// NewDoctor creates a Doctor for the given binaries.
func NewDoctor(exec Executor, ffmpegPath, ffprobePath, ytdlpPath string) *Doctor {
	return &Doctor{
		exec: exec,
		tools: map[string]string{
			ToolFFmpeg:  orDefault(ffmpegPath, ToolFFmpeg),
			ToolFFprobe: orDefault(ffprobePath, ToolFFprobe),
			ToolYTDLP:   orDefault(ytdlpPath, ToolYTDLP),
		},
	}
}

// Check resolves every tool on PATH and records its version line.
func (d *Doctor) Check(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{Tools: make(map[string]ToolInfo, len(d.tools)), ProbedAt: time.Now()}
	for name, bin := range d.tools {
		caps.Tools[name] = d.checkTool(ctx, name, bin)
	}
	return caps, nil
}

func (d *Doctor) checkTool(ctx context.Context, name, bin string) ToolInfo {
	path, err := exec.LookPath(bin)
	if err != nil {
		return ToolInfo{Error: err.Error()}
	}
	flag := "-version"
	if name == ToolYTDLP {
		flag = "--version"
	}
	out, res := d.exec.Output(ctx, path, flag)
	if !res.IsSuccess() {
		return ToolInfo{Path: path, Error: truncate(res.StderrTail, 256)}
	}
	line, _, _ := bytes.Cut(out, []byte("\n"))
	return ToolInfo{Available: true, Path: path, Version: string(bytes.TrimSpace(line))}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Prober is what CachedDoctor wraps.
type Prober interface {
	Check(ctx context.Context) (*Capabilities, error)
}

// CachedDoctor wraps a Prober to cache results with a configurable TTL.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around tool probes.
func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Check(ctx)
	if err != nil {
		d.logger.Warn("tool probe failed", "error", err)
		// Return stale cache if available
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}

// Invalidate drops the cached result.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
