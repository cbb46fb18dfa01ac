// Package textunit cuts input text into the ordered units the resolver illustrates.
package textunit

import (
	"fmt"
	"strings"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/clip"
)

// Mode selects how text is cut.
type Mode string

const (
	ModeSentence Mode = "sentence"
	ModeKeyword  Mode = "keyword"
)

// DefaultKeywordCount is how many keywords keyword mode keeps.
const DefaultKeywordCount = 10

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSentence:
		return ModeSentence, nil
	case ModeKeyword:
		return ModeKeyword, nil
	}
	return "", fmt.Errorf("unknown unitizer mode %q (want sentence or keyword)", s)
}

// Analyzer extracts ranked keywords from text.
type Analyzer interface {
	Keywords(text string, n int) []string
}

// Unitizer turns text into units.
type Unitizer struct {
	mode     Mode
	analyzer Analyzer
	keywords int
}

// NewUnitizer creates a unitizer. A nil analyzer selects FrequencyAnalyzer.
func NewUnitizer(mode Mode, analyzer Analyzer) *Unitizer {
	if analyzer == nil {
		analyzer = NewFrequencyAnalyzer()
	}
	return &Unitizer{mode: mode, analyzer: analyzer, keywords: DefaultKeywordCount}
}

func (u *Unitizer) Mode() Mode { return u.mode }

// Unitize returns the units of text in source order (sentence mode) or rank
// order (keyword mode). Empty input yields no units.
func (u *Unitizer) Unitize(text string) []clip.Unit {
	var parts []string
	switch u.mode {
	case ModeKeyword:
		parts = u.analyzer.Keywords(text, u.keywords)
	default:
		parts = Sentences(text)
	}

	units := make([]clip.Unit, 0, len(parts))
	for _, p := range parts {
		units = append(units, clip.Unit{Text: p, Granularity: clip.Phrase})
	}
	return units
}

// Sentences splits on sentence terminators, trims each piece and drops empties.
func Sentences(text string) []string {
	pieces := strings.FieldsFunc(text, isTerminator)
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

// Words splits a unit into word-level units for the fallback tier.
func Words(u clip.Unit) []clip.Unit {
	fields := strings.Fields(u.Text)
	out := make([]clip.Unit, 0, len(fields))
	for _, f := range fields {
		out = append(out, clip.Unit{Text: f, Granularity: clip.Word})
	}
	return out
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
