// Package duration estimates narration length from text and checks the
// compiled montage against it.
package duration

import (
	"log/slog"
	"math"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/clip"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/textunit"
)

const (
	// WordsPerMinute is the assumed reading speed.
	WordsPerMinute = 150
	// Tolerance is the allowed difference between output and target, in seconds.
	Tolerance = 5.0
)

// EstimateReadingSeconds returns how long text takes to read aloud.
func EstimateReadingSeconds(text string) float64 {
	return float64(textunit.WordCount(text)) / WordsPerMinute * 60
}

// FallbackTarget is the reading time of every fallback clip's text. It is
// the target duration when no audio track is supplied.
func FallbackTarget(clips []clip.ResolvedClip) float64 {
	var total float64
	for _, c := range clips {
		if !c.IsMatched() {
			total += EstimateReadingSeconds(c.OriginatingText)
		}
	}
	return total
}

// Verdict is the outcome of Verify.
type Verdict struct {
	Output   float64 `json:"output_seconds"`
	Target   float64 `json:"target_seconds"`
	Delta    float64 `json:"delta_seconds"`
	Mismatch bool    `json:"mismatch"`
}

// Verify compares output against target. A mismatch beyond Tolerance is
// logged as a warning and never fails the run.
func Verify(logger *slog.Logger, output, target float64) Verdict {
	v := Verdict{Output: output, Target: target, Delta: output - target}
	v.Mismatch = math.Abs(v.Delta) > Tolerance
	if v.Mismatch && logger != nil {
		logger.Warn("duration mismatch",
			"output_seconds", output,
			"target_seconds", target,
			"delta_seconds", v.Delta,
		)
	}
	return v
}
