// Package segment splits chapter text into sentences and estimates where each
// sentence falls in the chapter's audio.
//
// Timing is a proportional allocation: every sentence receives a share of the
// chapter duration equal to its share of the chapter's characters. This is
// not a forced alignment. Dialogue, numbers and long pauses read at a
// different pace than prose, so their spans will be off.
package segment

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Sentence is one sentence of a chapter and its estimated audio span.
type Sentence struct {
	// Text is the trimmed sentence without its terminal punctuation.
	Text string

	// Start and End are offsets into the chapter audio. End >= Start.
	Start time.Duration
	End   time.Duration
}

// Duration returns End - Start.
func (s Sentence) Duration() time.Duration { return s.End - s.Start }

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Sentences splits text on '.', '!' and '?', trims whitespace and drops empty
// pieces.
func Sentences(text string) []string {
	parts := strings.FieldsFunc(text, isTerminal)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Split segments chapterText and assigns each sentence a span of
// chapterDuration proportional to its length in runes. The result is empty
// (never nil) when chapterDuration is not positive or the text holds no
// sentences. The last sentence ends at chapterDuration.
func Split(chapterText string, chapterDuration time.Duration) []Sentence {
	if chapterDuration <= 0 {
		return []Sentence{}
	}
	texts := Sentences(chapterText)
	if len(texts) == 0 {
		return []Sentence{}
	}

	lengths := make([]int, len(texts))
	total := 0
	for i, t := range texts {
		lengths[i] = utf8.RuneCountInString(t)
		total += lengths[i]
	}

	// Offsets come from the running character count:
	// length/charsPerSecond == length*duration/total.
	durSec := chapterDuration.Seconds()
	offset := func(chars int) time.Duration {
		return seconds(durSec * float64(chars) / float64(total))
	}
	out := make([]Sentence, len(texts))
	acc := 0
	for i, t := range texts {
		start := offset(acc)
		acc += lengths[i]
		out[i] = Sentence{
			Text:  t,
			Start: start,
			End:   offset(acc),
		}
	}
	// Absorb rounding so the spans tile the chapter exactly.
	out[len(out)-1].End = chapterDuration
	return out
}

// Lookup returns the index of the sentence whose span contains offset, or -1
// when offset lies outside every span. Spans are half-open except the last,
// which includes its end.
func Lookup(sentences []Sentence, offset time.Duration) int {
	lo, hi := 0, len(sentences)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		s := sentences[mid]
		switch {
		case offset < s.Start:
			hi = mid - 1
		case offset >= s.End && !(mid == len(sentences)-1 && offset == s.End):
			lo = mid + 1
		default:
			return mid
		}
	}
	return -1
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
