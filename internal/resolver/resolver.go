// Package resolver maps text units to source clips.
//
// Each unit runs a small state machine: search for candidate videos, scan
// their transcripts for the first segment containing the text, acquire the
// matching range. A phrase that cannot be illustrated is retried word by
// word; anything still unmatched becomes a fallback placeholder. Every
// external call is admitted by the shared quota tracker first.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/clip"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/logging"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/quota"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/textunit"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/youtube"
)

// DefaultMaxResults is the number of search candidates considered per query.
const DefaultMaxResults = 5

// Searcher finds candidate video IDs for a query, most relevant first.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]string, error)
}

// TranscriptSource returns the timed captions of a video.
type TranscriptSource interface {
	Transcript(ctx context.Context, videoID string) ([]clip.TranscriptSegment, error)
}

// Acquirer produces a local clip for a matched range.
type Acquirer interface {
	Acquire(ctx context.Context, videoID string, start, end float64) (string, error)
}

// State is a step of the per-unit state machine.
type State string

const (
	StateSearching             State = "searching"
	StateTranscriptScan        State = "transcript_scan"
	StateAcquiring             State = "acquiring"
	StateWordFallbackSearching State = "word_fallback_searching"
	StateWordTranscriptScan    State = "word_transcript_scan"
	StateWordAcquiring         State = "word_acquiring"
	StateMatched               State = "matched"
	StateUnmatched             State = "unmatched"
)

// Trace records how one unit was resolved.
type Trace struct {
	Index               int               `json:"index"`
	Unit                clip.Unit         `json:"unit"`
	States              []State           `json:"states"`
	Searches            int               `json:"searches"`
	CandidatesTried     int               `json:"candidates_tried"`
	QuotaDenials        int               `json:"quota_denials"`
	AcquisitionFailures int               `json:"acquisition_failures"`
	MatchedText         string            `json:"matched_text,omitempty"`
	Result              clip.ResolvedClip `json:"result"`
}

func (t *Trace) visit(s State) { t.States = append(t.States, s) }

// Observer receives the trace of every resolved unit. With more than one
// worker it is called from several goroutines.
type Observer func(Trace)

// Config tunes the resolver.
type Config struct {
	MaxResults   int
	Workers      int
	WordFallback bool
}

// Resolver resolves units against the search, transcript and acquisition collaborators.
type Resolver struct {
	quota       *quota.Tracker
	searcher    Searcher
	transcripts TranscriptSource
	acquirer    Acquirer
	cfg         Config
	observer    Observer
	logger      *slog.Logger
}

// New creates a resolver. Zero MaxResults and Workers take their defaults.
func New(q *quota.Tracker, s Searcher, ts TranscriptSource, a Acquirer, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{
		quota:       q,
		searcher:    s,
		transcripts: ts,
		acquirer:    a,
		cfg:         cfg,
		logger:      logging.WithComponent(logger, "resolver"),
	}
}

// SetObserver installs a per-unit trace callback.
func (r *Resolver) SetObserver(o Observer) { r.observer = o }

// ResolveAll resolves every unit and returns one clip per unit in input
// order. It returns only after all units are done.
func (r *Resolver) ResolveAll(ctx context.Context, units []clip.Unit) []clip.ResolvedClip {
	out := make([]clip.ResolvedClip, len(units))

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, u := range units {
		g.Go(func() error {
			out[i] = r.Resolve(ctx, i, u)
			return nil
		})
	}
	g.Wait()

	return out
}

// Resolve runs the state machine for one unit. It never fails: anything
// that cannot be matched becomes a Fallback carrying the unit text.
func (r *Resolver) Resolve(ctx context.Context, index int, u clip.Unit) clip.ResolvedClip {
	tr := &Trace{Index: index, Unit: u}
	logger := logging.WithUnit(r.logger, index, string(u.Granularity))

	res, ok := r.match(ctx, logger, u.Text, false, tr)
	if !ok && r.wordFallback(u) {
		for _, w := range textunit.Words(u) {
			if res, ok = r.match(ctx, logger, w.Text, true, tr); ok {
				break
			}
		}
	}

	if ok {
		tr.visit(StateMatched)
	} else {
		tr.visit(StateUnmatched)
		res = clip.Fallback(u.Text)
	}
	tr.Result = res

	logger.Info("unit resolved",
		"result", res.String(),
		"candidates", tr.CandidatesTried,
		"quota_denials", tr.QuotaDenials,
	)
	if r.observer != nil {
		r.observer(*tr)
	}
	return res
}

// wordFallback reports whether a failed phrase is retried word by word.
// A one-word phrase equal to its only word would just repeat the same query.
func (r *Resolver) wordFallback(u clip.Unit) bool {
	if !r.cfg.WordFallback || u.Granularity != clip.Phrase {
		return false
	}
	words := textunit.Words(u)
	return !(len(words) == 1 && words[0].Text == u.Text)
}

// match runs search, transcript scan and acquisition for one query text.
func (r *Resolver) match(ctx context.Context, logger *slog.Logger, text string, word bool, tr *Trace) (clip.ResolvedClip, bool) {
	searching, scanning, acquiring := StateSearching, StateTranscriptScan, StateAcquiring
	if word {
		searching, scanning, acquiring = StateWordFallbackSearching, StateWordTranscriptScan, StateWordAcquiring
	}

	var (
		candidates []string
		videoID    string
		seg        clip.TranscriptSegment
	)
	state := searching
	for {
		tr.visit(state)
		switch state {
		case searching:
			candidates = r.search(ctx, logger, text, tr)
			if len(candidates) == 0 {
				return clip.ResolvedClip{}, false
			}
			state = scanning

		case scanning:
			var found bool
			videoID, seg, found = r.scan(ctx, logger, text, candidates, tr)
			if !found {
				return clip.ResolvedClip{}, false
			}
			state = acquiring

		case acquiring:
			start, end := seg.StartSeconds, seg.EndSeconds()
			path, err := r.acquirer.Acquire(ctx, videoID, start, end)
			if err != nil {
				tr.AcquisitionFailures++
				logger.Warn("acquisition failed", "video_id", videoID, "text", text, "error", err)
				return clip.ResolvedClip{}, false
			}
			tr.MatchedText = text
			return clip.Matched(videoID, start, end, path), true
		}
	}
}

// search charges a search and returns candidates. Every provider retry is
// charged again. Denials and provider errors both mean no candidates.
func (r *Resolver) search(ctx context.Context, logger *slog.Logger, text string, tr *Trace) []string {
	if !r.quota.Charge(quota.KindSearch) {
		tr.QuotaDenials++
		logger.Debug("search denied by quota", "text", text)
		return nil
	}
	tr.Searches++

	// provider retries are separate searches and pay for themselves
	sctx := youtube.WithAdmission(ctx, func() bool {
		if !r.quota.Charge(quota.KindSearch) {
			tr.QuotaDenials++
			return false
		}
		tr.Searches++
		return true
	})
	ids, err := r.searcher.Search(sctx, text, r.cfg.MaxResults)
	if err != nil {
		if errors.Is(err, youtube.ErrAttemptDenied) {
			logger.Debug("search retry denied by quota", "text", text)
		} else {
			logger.Warn("search failed", "text", text, "error", err)
		}
		return nil
	}
	if len(ids) > r.cfg.MaxResults {
		ids = ids[:r.cfg.MaxResults]
	}
	return ids
}

// scan walks candidates in order and returns the first segment containing
// text. A quota denial stops the scan; transcript errors skip the candidate.
func (r *Resolver) scan(ctx context.Context, logger *slog.Logger, text string, candidates []string, tr *Trace) (string, clip.TranscriptSegment, bool) {
	needle := fold(text)
	for _, id := range candidates {
		if !r.quota.Charge(quota.KindTranscript) {
			tr.QuotaDenials++
			logger.Debug("transcript denied by quota", "video_id", id)
			return "", clip.TranscriptSegment{}, false
		}
		tr.CandidatesTried++

		segs, err := r.transcripts.Transcript(ctx, id)
		if err != nil {
			if errors.Is(err, youtube.ErrTranscriptsDisabled) {
				logger.Debug("transcripts disabled", "video_id", id)
			} else {
				logger.Warn("transcript failed", "video_id", id, "error", err)
			}
			continue
		}
		for _, s := range segs {
			if strings.Contains(fold(s.Text), needle) {
				return id, s, true
			}
		}
	}
	return "", clip.TranscriptSegment{}, false
}

// fold applies Unicode case folding. Casers are stateful, so one is made per call.
func fold(s string) string {
	return cases.Fold().String(s)
}
