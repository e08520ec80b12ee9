package capture

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/readalong/pkg/audio"
	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// Segment is one committed piece of the transcript.
type Segment struct {
	Text       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// RecordingResult is what a finished recording hands to its caller. The
// caller owns Audio and must Discard it when done.
type RecordingResult struct {
	Audio      *audio.Artifact
	Transcript string

	// Duration is the wall-clock time between recording start and stop.
	Duration time.Duration

	// Confidence is the mean word confidence, 0 without segments. Finals
	// without word detail count as one word at their own confidence.
	Confidence float64

	// Segments are ordered by Start.
	Segments []Segment
}

// buildResult assembles the result from the finals. Finals that carry word
// detail contribute one segment per word, the rest one segment each. When
// the recognizer committed nothing the last partial stands in as the
// transcript.
func buildResult(a *audio.Artifact, finals []stt.Transcript, partial string, d time.Duration) *RecordingResult {
	committed := make([]stt.Transcript, 0, len(finals))
	for _, f := range finals {
		f.Text = strings.TrimSpace(f.Text)
		if f.Text != "" {
			committed = append(committed, f)
		}
	}
	slices.SortStableFunc(committed, func(a, b stt.Transcript) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	var segs []Segment
	texts := make([]string, 0, len(committed))
	for _, f := range committed {
		texts = append(texts, f.Text)
		segs = append(segs, segmentsOf(f)...)
	}
	slices.SortStableFunc(segs, func(a, b Segment) int {
		return cmp.Compare(a.Start, b.Start)
	})

	transcript := strings.Join(texts, " ")
	if transcript == "" {
		transcript = strings.TrimSpace(partial)
	}

	var sum float64
	for _, s := range segs {
		sum += s.Confidence
	}
	var conf float64
	if len(segs) > 0 {
		conf = sum / float64(len(segs))
	}
	return &RecordingResult{
		Audio:      a,
		Transcript: transcript,
		Duration:   max(d, 0),
		Confidence: conf,
		Segments:   segs,
	}
}

// segmentsOf splits a final into word segments. Word times are already
// relative to the stream start.
func segmentsOf(f stt.Transcript) []Segment {
	segs := make([]Segment, 0, len(f.Words))
	for _, w := range f.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		segs = append(segs, Segment{
			Text:       text,
			Start:      w.Start,
			End:        max(w.End, w.Start),
			Confidence: w.Confidence,
		})
	}
	if len(segs) > 0 {
		return segs
	}
	return []Segment{{
		Text:       f.Text,
		Start:      f.Timestamp,
		End:        f.Timestamp + max(f.Duration, 0),
		Confidence: f.Confidence,
	}}
}
