package practice

import (
	"errors"
	"time"

	"github.com/MrWong99/readalong/internal/capture"
	"github.com/MrWong99/readalong/internal/compare"
	"github.com/MrWong99/readalong/pkg/provider/scoring"
)

var (
	// ErrScoringFailed wraps every failure of the scoring provider. The
	// sentence keeps its comparison.
	ErrScoringFailed = errors.New("practice: pronunciation scoring failed")

	// ErrScoreDiscarded reports a score that arrived after its recording was
	// replaced or the session closed.
	ErrScoreDiscarded = errors.New("practice: score arrived for a replaced recording")

	ErrNoRecording        = errors.New("practice: current sentence has no recording")
	ErrNotListening       = errors.New("practice: recording can only start while listening")
	ErrNoSentences        = errors.New("practice: chapter has no sentences")
	ErrNoPlayer           = errors.New("practice: no playback configured")
	ErrScoringUnavailable = errors.New("practice: no scoring provider configured")
	ErrClosed             = errors.New("practice: session closed")
)

// Mode is the per-sentence interaction mode.
type Mode int

const (
	ModeListening Mode = iota
	ModeRecording
	ModeReviewing
)

func (m Mode) String() string {
	switch m {
	case ModeListening:
		return "listening"
	case ModeRecording:
		return "recording"
	case ModeReviewing:
		return "reviewing"
	default:
		return "unknown"
	}
}

// Sentence is one sentence of the chapter with the user's latest attempt.
type Sentence struct {
	Index int
	Text  string

	// Start and End locate the sentence in the chapter audio.
	Start time.Duration
	End   time.Duration

	// Recording, Comparison and Score belong to the latest attempt. Score is
	// cleared whenever a new recording replaces the old one.
	Recording  *capture.RecordingResult
	Comparison *compare.Result
	Score      *scoring.Score
}

// Duration returns End - Start.
func (s Sentence) Duration() time.Duration { return s.End - s.Start }

// Completed reports whether the sentence has a recording.
func (s Sentence) Completed() bool { return s.Recording != nil }

// Summary aggregates a practice session. The averages are taken over
// scored sentences only and are 0 when nothing was scored.
type Summary struct {
	TotalSentences     int
	CompletedSentences int
	ScoredSentences    int

	AverageAccuracy float64
	AverageFluency  float64
	AverageRhythm   float64
	OverallScore    float64

	// AverageWordAccuracy is the mean comparator accuracy over completed
	// sentences.
	AverageWordAccuracy float64

	// PracticeTime is the summed duration of the stored recordings.
	PracticeTime time.Duration
}

// State is a point-in-time view of a controller.
type State struct {
	SessionID string
	Index     int
	Total     int
	Mode      Mode
	Playing   bool

	// Current is a copy of the current sentence, nil for an empty chapter.
	Current *Sentence

	Recorder     capture.Snapshot
	OverallScore float64
}
