package stt

import (
	"strings"
	"time"
)

// Transcript is a single recognition result. Both partial and final results
// use this type.
type Transcript struct {
	// Text is the recognised speech for this result.
	Text string

	// IsFinal reports whether the provider has committed to this result.
	IsFinal bool

	// Confidence is the overall confidence (0.0–1.0). Zero when the provider
	// does not report one.
	Confidence float64

	// Words holds per-word timing and confidence when available.
	Words []WordDetail

	// Timestamp is where the result starts, relative to the session start.
	Timestamp time.Duration

	// Duration is the length of audio covered by the result.
	Duration time.Duration
}

// WordDetail holds per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a recognition hint for a word the speaker is expected to
// say.
type KeywordBoost struct {
	// Keyword is the text to boost.
	Keyword string

	// Boost is the provider-specific intensity.
	Boost float64
}

// JoinText concatenates the text of ts with single spaces, skipping empty
// results.
func JoinText(ts []Transcript) string {
	parts := make([]string, 0, len(ts))
	for _, t := range ts {
		if s := strings.TrimSpace(t.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
