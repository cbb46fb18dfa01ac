// Package runner drives one montage run end to end: text to units, units to
// clips, clips to a compiled video with its EDL sidecar, recording every
// step in the run journal.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/acquire"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/clip"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/duration"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/export"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/journal"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/logging"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/media"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/montage"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/quota"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/resolver"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/textunit"
)

var (
	ErrMissingInputFile = errors.New("input text file not found")
	ErrMissingAudioFile = errors.New("audio file not found")
	ErrInvalidOutput    = errors.New("invalid output path")
)

// Request names the files of one run.
type Request struct {
	TextPath   string
	OutputPath string
	AudioPath  string
}

// Options tune a run. Zero values take the package defaults of the
// collaborators they configure.
type Options struct {
	Mode         textunit.Mode
	Workers      int
	QuotaLimit   int
	MaxResults   int
	WordFallback bool
	ScratchDir   string
	ClipsDir     string
}

// Deps are the external collaborators of a run.
type Deps struct {
	Codec       media.Codec
	Searcher    resolver.Searcher
	Transcripts resolver.TranscriptSource
	Fetcher     acquire.SourceFetcher
	Analyzer    textunit.Analyzer
	Repository  journal.Repository
}

// Report summarizes a finished run.
type Report struct {
	RunID         string           `json:"run_id"`
	Units         int              `json:"units"`
	Matched       int              `json:"matched"`
	Fallback      int              `json:"fallback"`
	QuotaUsed     int              `json:"quota_used"`
	QuotaLimit    int              `json:"quota_limit"`
	OutputSeconds float64          `json:"output_seconds"`
	Verdict       duration.Verdict `json:"verdict"`
	EDLPath       string           `json:"edl_path,omitempty"`
	Montage       *montage.Result  `json:"-"`
	Elapsed       time.Duration    `json:"elapsed"`
}

// AllFallback reports whether no unit found footage.
func (r *Report) AllFallback() bool { return r.Units > 0 && r.Matched == 0 }

type Runner struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func New(deps Deps, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Mode == "" {
		opts.Mode = textunit.ModeSentence
	}
	return &Runner{deps: deps, opts: opts, logger: logging.WithComponent(logger, "runner")}
}

// Run executes one montage run. Startup failures (missing input, missing
// audio, bad output path) return before anything is journaled.
func (r *Runner) Run(ctx context.Context, req Request) (report *Report, err error) {
	started := time.Now()

	text, err := os.ReadFile(req.TextPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInputFile, req.TextPath)
		}
		return nil, fmt.Errorf("read input: %w", err)
	}
	if req.AudioPath != "" {
		if _, err := os.Stat(req.AudioPath); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingAudioFile, req.AudioPath)
		}
	}
	if err := export.ValidateOutputPath(req.OutputPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	runID := journal.NewID()
	logger := logging.WithRunID(r.logger, runID)

	run := &journal.Run{
		ID:         runID,
		TextPath:   req.TextPath,
		OutputPath: req.OutputPath,
		AudioPath:  req.AudioPath,
		Mode:       string(r.opts.Mode),
		QuotaLimit: r.opts.QuotaLimit,
	}
	if err := r.deps.Repository.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("journal run: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		// the run context may already be canceled
		if uerr := r.deps.Repository.UpdateRunStatus(context.WithoutCancel(ctx), runID, journal.RunStatusFailed, err.Error()); uerr != nil {
			logger.Error("failed to mark run failed", "error", uerr)
		}
	}()

	units := textunit.NewUnitizer(r.opts.Mode, r.deps.Analyzer).Unitize(string(text))
	logger.Info("text unitized", "mode", r.opts.Mode, "units", len(units))

	tracker := quota.NewTracker(r.opts.QuotaLimit)
	tracker.SetObserver(func(kind quota.Kind, cost int, allowed bool) {
		if err := r.deps.Repository.RecordCall(ctx, runID, string(kind), cost, allowed); err != nil {
			logger.Debug("failed to record call", "kind", kind, "error", err)
		}
	})

	clips, err := r.resolve(ctx, logger, tracker, runID, units)
	if err != nil {
		return nil, err
	}

	plan := clip.Plan{Clips: clips, AudioPath: req.AudioPath}
	plan.TargetSeconds, err = r.target(ctx, plan)
	if err != nil {
		return nil, err
	}

	res, err := montage.NewCompiler(r.deps.Codec, logger).Compile(ctx, plan, req.OutputPath)
	if err != nil {
		return nil, err
	}

	output := res.TotalSeconds()
	if p, perr := r.deps.Codec.Probe(ctx, req.OutputPath); perr == nil && p.Duration > 0 {
		output = p.Duration
	}
	verdict := duration.Verify(logger, output, plan.TargetSeconds)

	edlPath, err := export.WriteEDL(res, edlTitle(req.TextPath))
	if err != nil {
		// the montage itself is complete
		logger.Warn("failed to write edl", "error", err)
		edlPath = ""
	}

	if err := r.deps.Repository.FinishRun(ctx, runID, tracker.Consumed(), plan.TargetSeconds, output); err != nil {
		logger.Error("failed to finish journal run", "error", err)
	}

	matched, fallback := plan.Counts()
	report = &Report{
		RunID:         runID,
		Units:         len(units),
		Matched:       matched,
		Fallback:      fallback,
		QuotaUsed:     tracker.Consumed(),
		QuotaLimit:    tracker.Limit(),
		OutputSeconds: output,
		Verdict:       verdict,
		EDLPath:       edlPath,
		Montage:       res,
		Elapsed:       time.Since(started),
	}
	if report.AllFallback() {
		logger.Warn("no footage matched; montage is all placeholders", "units", report.Units)
	}
	logger.Info("run completed",
		"matched", matched,
		"fallback", fallback,
		"quota_used", report.QuotaUsed,
		"output_seconds", output,
		"target_seconds", plan.TargetSeconds,
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)
	return report, nil
}

func (r *Runner) resolve(ctx context.Context, logger *slog.Logger, tracker *quota.Tracker, runID string, units []clip.Unit) ([]clip.ResolvedClip, error) {
	clipsDir := filepath.Join(r.opts.ClipsDir, runID)
	acq := acquire.New(tracker, r.deps.Fetcher, r.deps.Codec, r.opts.ScratchDir, clipsDir, logger)
	defer func() {
		// slots are freed per acquisition; drop the parent once it is empty
		os.Remove(r.opts.ScratchDir)
	}()

	res := resolver.New(tracker, r.deps.Searcher, r.deps.Transcripts, acq, resolver.Config{
		MaxResults:   r.opts.MaxResults,
		Workers:      r.opts.Workers,
		WordFallback: r.opts.WordFallback,
	}, logger)
	res.SetObserver(func(tr resolver.Trace) {
		logger.Debug("unit resolved",
			"index", tr.Index,
			"outcome", tr.Result.Kind,
			"states", tr.States,
			"searches", tr.Searches,
			"candidates_tried", tr.CandidatesTried,
			"quota_denials", tr.QuotaDenials,
		)
	})

	clips := res.ResolveAll(ctx, units)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]journal.UnitRecord, len(units))
	for i, u := range units {
		c := clips[i]
		records[i] = journal.UnitRecord{
			Index:        i,
			Text:         u.Text,
			Granularity:  string(u.Granularity),
			Outcome:      string(c.Kind),
			VideoID:      c.SourceVideoID,
			StartSeconds: c.StartSeconds,
			EndSeconds:   c.EndSeconds,
			ClipPath:     c.LocalPath,
		}
	}
	if err := r.deps.Repository.SaveUnits(ctx, runID, records); err != nil {
		logger.Error("failed to save unit outcomes", "error", err)
	}
	return clips, nil
}

// target is the audio length when an audio track is given, otherwise the
// reading time of the text no footage was found for.
func (r *Runner) target(ctx context.Context, plan clip.Plan) (float64, error) {
	if !plan.HasAudio() {
		return duration.FallbackTarget(plan.Clips), nil
	}
	p, err := r.deps.Codec.Probe(ctx, plan.AudioPath)
	if err != nil {
		return 0, fmt.Errorf("probe audio: %w", err)
	}
	return p.Duration, nil
}

func edlTitle(textPath string) string {
	base := filepath.Base(textPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
