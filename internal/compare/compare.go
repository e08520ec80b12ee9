// Package compare aligns what a reader said against what they were asked to
// read.
//
// Alignment is word based and deliberately simple. Spoken words form a
// multiset; each original word, in order, consumes an exact occurrence if one
// is left, otherwise the first remaining word within the edit-distance
// threshold, otherwise it is missed. Whatever remains of the multiset is
// extra. Matching ignores position, so a repeated or reordered word may pair
// with the wrong occurrence. For single practice sentences that is
// acceptable and it keeps scores stable across releases.
package compare

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// DefaultThreshold is the normalized edit distance below which a spoken word
// counts as an attempt at the original word.
const DefaultThreshold = 0.3

// WordMatch is the outcome for one word of the original text.
type WordMatch struct {
	// Word is the normalized original word.
	Word string

	// Correct reports an exact match.
	Correct bool

	// SpokenAs is the near-miss the word was paired with. Empty for exact
	// matches and for missed words.
	SpokenAs string

	// Phonetic reports that SpokenAs shares a Double Metaphone code with Word,
	// i.e. the near-miss at least sounds like the target. It never affects
	// Accuracy.
	Phonetic bool
}

// Missed reports whether nothing in the spoken text was paired with the word.
func (m WordMatch) Missed() bool { return !m.Correct && m.SpokenAs == "" }

// Result is the alignment of one recording.
type Result struct {
	OriginalText string
	SpokenText   string

	// Accuracy is the fraction of original words matched exactly, in [0, 1].
	Accuracy float64

	// Matches holds one entry per original word, in original order.
	Matches []WordMatch

	// Missed and Extra are sorted sets of words without a counterpart.
	Missed []string
	Extra  []string
}

// CorrectCount returns the number of exactly matched words.
func (r Result) CorrectCount() int {
	n := 0
	for _, m := range r.Matches {
		if m.Correct {
			n++
		}
	}
	return n
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithThreshold sets the normalized edit-distance bound for near-misses. A
// candidate is accepted when its distance is strictly below the threshold.
// Default: 0.3.
func WithThreshold(threshold float64) Option {
	return func(c *Comparator) {
		c.threshold = threshold
	}
}

// Comparator aligns transcripts. It is read-only after construction and safe
// for concurrent use.
type Comparator struct {
	threshold float64
}

// New returns a Comparator configured with opts.
func New(opts ...Option) *Comparator {
	c := &Comparator{threshold: DefaultThreshold}
	for _, o := range opts {
		o(c)
	}
	return c
}

var defaultComparator = New()

// Compare aligns spoken against original with the default threshold.
func Compare(original, spoken string) Result {
	return defaultComparator.Compare(original, spoken)
}

// Compare aligns spoken against original.
func (c *Comparator) Compare(original, spoken string) Result {
	want := Tokenize(original)
	pool := Tokenize(spoken)

	r := Result{
		OriginalText: original,
		SpokenText:   spoken,
		Matches:      make([]WordMatch, 0, len(want)),
	}

	var missed []string
	correct := 0
	for _, w := range want {
		if i := slices.Index(pool, w); i >= 0 {
			pool = slices.Delete(pool, i, i+1)
			r.Matches = append(r.Matches, WordMatch{Word: w, Correct: true})
			correct++
			continue
		}
		if i := c.nearest(w, pool); i >= 0 {
			got := pool[i]
			pool = slices.Delete(pool, i, i+1)
			r.Matches = append(r.Matches, WordMatch{Word: w, SpokenAs: got, Phonetic: soundsAlike(w, got)})
			continue
		}
		r.Matches = append(r.Matches, WordMatch{Word: w})
		missed = append(missed, w)
	}

	if len(want) > 0 {
		r.Accuracy = float64(correct) / float64(len(want))
	}
	r.Missed = sortedSet(missed)
	r.Extra = sortedSet(pool)
	return r
}

// nearest returns the index of the first candidate within the threshold, or
// -1.
func (c *Comparator) nearest(word string, pool []string) int {
	for i, cand := range pool {
		if NormalizedDistance(word, cand) < c.threshold {
			return i
		}
	}
	return -1
}

// NormalizedDistance returns the Levenshtein distance between a and b divided
// by the rune length of the longer one. Two empty strings are at distance 0.
func NormalizedDistance(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	return float64(matchr.Levenshtein(a, b)) / float64(longest)
}

// Tokenize lowercases text, splits it on whitespace and strips leading and
// trailing punctuation and symbols from each token. Empty tokens are dropped.
// Inner punctuation such as apostrophes and hyphens is kept.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := strings.TrimFunc(f, isEdge); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func isEdge(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// soundsAlike reports whether a and b share a Double Metaphone code.
func soundsAlike(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

func sortedSet(words []string) []string {
	out := slices.Clone(words)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	return out
}
