// Package clip holds the data passed between pipeline stages: text units,
// transcript segments, resolved clips and the montage plan.
package clip

import "fmt"

// Granularity is the level a unit was cut at.
type Granularity string

const (
	Phrase Granularity = "phrase"
	Word   Granularity = "word"
)

// Unit is a piece of input text to be illustrated. Position in the slice is montage order.
type Unit struct {
	Text        string      `json:"text"`
	Granularity Granularity `json:"granularity"`
}

// TranscriptSegment is one timed caption line of a source video.
type TranscriptSegment struct {
	Text            string  `json:"text"`
	StartSeconds    float64 `json:"start_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// EndSeconds returns start + duration.
func (s TranscriptSegment) EndSeconds() float64 {
	return s.StartSeconds + s.DurationSeconds
}

// Kind discriminates ResolvedClip.
type Kind string

const (
	KindMatched  Kind = "matched"
	KindFallback Kind = "fallback"
)

// ResolvedClip is the outcome of resolving one unit. Exactly one of the
// Matched or Fallback field groups is meaningful, selected by Kind.
type ResolvedClip struct {
	Kind Kind `json:"kind"`

	// Matched
	SourceVideoID string  `json:"source_video_id,omitempty"`
	StartSeconds  float64 `json:"start_seconds,omitempty"`
	EndSeconds    float64 `json:"end_seconds,omitempty"`
	LocalPath     string  `json:"local_path,omitempty"`

	// Fallback
	OriginatingText string `json:"originating_text,omitempty"`
}

// Matched builds a matched clip.
func Matched(videoID string, start, end float64, path string) ResolvedClip {
	return ResolvedClip{
		Kind:          KindMatched,
		SourceVideoID: videoID,
		StartSeconds:  start,
		EndSeconds:    end,
		LocalPath:     path,
	}
}

// Fallback builds a placeholder clip for text that could not be illustrated.
func Fallback(text string) ResolvedClip {
	return ResolvedClip{Kind: KindFallback, OriginatingText: text}
}

func (c ResolvedClip) IsMatched() bool { return c.Kind == KindMatched }

// Seconds returns the nominal length of a matched clip, zero for fallbacks.
func (c ResolvedClip) Seconds() float64 {
	if !c.IsMatched() {
		return 0
	}
	return c.EndSeconds - c.StartSeconds
}

func (c ResolvedClip) String() string {
	if c.IsMatched() {
		return fmt.Sprintf("Matched{%s %.2f-%.2f}", c.SourceVideoID, c.StartSeconds, c.EndSeconds)
	}
	return fmt.Sprintf("Fallback{%q}", c.OriginatingText)
}

// Plan is everything the compiler needs. It is consumed once.
type Plan struct {
	Clips         []ResolvedClip
	AudioPath     string
	TargetSeconds float64
}

// HasAudio reports whether the plan replaces the montage audio.
func (p Plan) HasAudio() bool { return p.AudioPath != "" }

// Counts returns the number of matched and fallback clips.
func (p Plan) Counts() (matched, fallback int) {
	for _, c := range p.Clips {
		if c.IsMatched() {
			matched++
		} else {
			fallback++
		}
	}
	return matched, fallback
}
