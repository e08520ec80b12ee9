// Package scoring defines the Provider interface for pronunciation-scoring
// backends.
//
// A scoring provider receives a recorded reading of a sentence together with
// the text that should have been read and returns an assessment of how well
// it was pronounced. Every score in this package is on the 0.0–1.0 scale;
// providers that speak a different scale convert at their boundary.
//
// Implementations must be safe for concurrent use.
package scoring

import (
	"context"

	"github.com/MrWong99/readalong/pkg/audio"
)

// Request is one scoring call.
type Request struct {
	// Audio is the recording as a complete WAV file.
	Audio []byte

	// Format describes the PCM inside Audio.
	Format audio.Format

	// OriginalText is the sentence the user was asked to read.
	OriginalText string

	// SpokenText is the recognised transcript of the recording. Optional.
	SpokenText string
}

// WordScore is the assessment of a single word.
type WordScore struct {
	Word  string
	Score float64

	// Issue names the detected problem ("mispronounced", "omitted", ...).
	// Empty when the word was fine.
	Issue string
}

// Score is a pronunciation assessment. All values are in [0, 1].
type Score struct {
	Overall  float64
	Accuracy float64
	Fluency  float64
	Rhythm   float64
	Words    []WordScore

	// Feedback is free-form advice from the provider, if any.
	Feedback string
}

// Provider scores recordings.
type Provider interface {
	// Score assesses req. It returns an error when the backend is unreachable,
	// rejects the request, or ctx expires.
	Score(ctx context.Context, req Request) (*Score, error)
}

// Clamp limits v to [0, 1]. NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
