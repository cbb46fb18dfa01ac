package textunit

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// FrequencyAnalyzer ranks tokens by frequency, ties broken by first appearance.
type FrequencyAnalyzer struct {
	fold      cases.Caser
	stopwords map[string]struct{}
}

// NewFrequencyAnalyzer returns an analyzer with the built-in English stop-word list.
func NewFrequencyAnalyzer() *FrequencyAnalyzer {
	sw := make(map[string]struct{}, len(englishStopwords))
	for _, w := range englishStopwords {
		sw[w] = struct{}{}
	}
	return &FrequencyAnalyzer{fold: cases.Fold(), stopwords: sw}
}

// Keywords returns up to n keywords, case-folded.
func (a *FrequencyAnalyzer) Keywords(text string, n int) []string {
	if n <= 0 {
		return nil
	}

	type entry struct {
		word  string
		count int
	}
	seen := map[string]*entry{}
	var order []*entry

	for _, raw := range strings.Fields(text) {
		tok := strings.TrimFunc(raw, func(r rune) bool { return !isWordRune(r) })
		if tok == "" || !allWordRunes(tok) {
			continue
		}
		tok = a.fold.String(tok)
		if _, stop := a.stopwords[tok]; stop {
			continue
		}
		if e, ok := seen[tok]; ok {
			e.count++
			continue
		}
		e := &entry{word: tok, count: 1}
		seen[tok] = e
		order = append(order, e)
	}

	// order is first-appearance order, so a stable sort keeps ties in that order
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].count > order[j].count
	})

	if len(order) > n {
		order = order[:n]
	}
	out := make([]string, len(order))
	for i, e := range order {
		out[i] = e.word
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func allWordRunes(s string) bool {
	for _, r := range s {
		if !isWordRune(r) {
			return false
		}
	}
	return true
}

var englishStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and",
	"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "could", "did", "do", "does", "doing",
	"down", "during", "each", "few", "for", "from", "further", "had", "has", "have",
	"having", "he", "her", "here", "hers", "herself", "him", "himself", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more", "most",
	"my", "myself", "no", "nor", "not", "now", "of", "off", "on", "once", "only", "or",
	"other", "our", "ours", "ourselves", "out", "over", "own", "same", "she", "should",
	"so", "some", "such", "than", "that", "the", "their", "theirs", "them", "themselves",
	"then", "there", "these", "they", "this", "those", "through", "to", "too", "under",
	"until", "up", "very", "was", "we", "were", "what", "when", "where", "which", "while",
	"who", "whom", "why", "will", "with", "would", "you", "your", "yours", "yourself",
	"yourselves",
}
