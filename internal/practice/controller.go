// Package practice drives a read-along session: it walks the sentences of a
// chapter, plays the reference reading of each, records the user's attempt,
// compares it with the text, and collects pronunciation scores.
//
// The [Controller] owns all sentence state. Its mutex is never held while it
// waits on playback, the recorder or the scoring provider, so every
// operation can be called from any goroutine while another is in flight.
package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/readalong/internal/capture"
	"github.com/MrWong99/readalong/internal/compare"
	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/internal/segment"
	"github.com/MrWong99/readalong/pkg/playback"
	"github.com/MrWong99/readalong/pkg/provider/scoring"
)

// Recorder is the part of [capture.Session] the controller drives.
type Recorder interface {
	Start(ctx context.Context, opts ...capture.StartOption) error
	Stop(ctx context.Context) (*capture.RecordingResult, error)
	Cancel()
	Reset()
	Snapshot() capture.Snapshot
}

var _ Recorder = (*capture.Session)(nil)

// Config describes the chapter being practised.
type Config struct {
	ChapterText     string
	ChapterDuration time.Duration

	// Media is handed to the Player to locate the chapter audio.
	Media string

	// MatchThreshold overrides [compare.DefaultThreshold] when positive.
	MatchThreshold float64
}

// Deps are the collaborators of a Controller. Recorder is required; without
// Player or Scorer the matching operations return [ErrNoPlayer] or
// [ErrScoringUnavailable].
type Deps struct {
	Recorder Recorder
	Player   playback.Player
	Scorer   scoring.Provider

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Controller is a practice session over one chapter.
type Controller struct {
	id         string
	cfg        Config
	deps       Deps
	metrics    *observe.Metrics
	comparator *compare.Comparator
	log        *slog.Logger

	// spans is the segmenter output; read-only after New.
	spans []segment.Sentence

	mu        sync.Mutex
	sentences []Sentence
	index     int
	mode      Mode
	overall   float64
	closed    bool

	// epoch changes whenever the current attempt is abandoned: navigation,
	// cancel, close. Work started under an older epoch must not commit.
	epoch uint64

	playing  bool
	playGen  uint64
	stopPlay context.CancelFunc
}

// New segments the chapter and returns a controller positioned on the first
// sentence. An empty chapter is allowed; navigation is then a no-op.
func New(cfg Config, deps Deps) (*Controller, error) {
	if deps.Recorder == nil {
		return nil, errors.New("practice: recorder is required")
	}
	if cfg.ChapterDuration < 0 {
		return nil, fmt.Errorf("practice: chapter duration must not be negative, got %s", cfg.ChapterDuration)
	}

	var opts []compare.Option
	if cfg.MatchThreshold > 0 {
		opts = append(opts, compare.WithThreshold(cfg.MatchThreshold))
	}

	split := segment.Split(cfg.ChapterText, cfg.ChapterDuration)
	sentences := make([]Sentence, len(split))
	for i, s := range split {
		sentences[i] = Sentence{Index: i, Text: s.Text, Start: s.Start, End: s.End}
	}

	c := &Controller{
		id:         uuid.NewString(),
		cfg:        cfg,
		deps:       deps,
		metrics:    deps.Metrics,
		comparator: compare.New(opts...),
		spans:      split,
		sentences:  sentences,
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.log = slog.Default().With("session_id", c.id)
	c.metrics.ActiveSessions.Add(context.Background(), 1)
	c.log.Info("practice session created", "sentences", len(sentences), "chapter_duration", cfg.ChapterDuration)
	return c, nil
}

// ID returns the session's unique identifier.
func (c *Controller) ID() string { return c.id }

// ─── playback ────────────────────────────────────────────────────────────────

// PlayCurrentSentence plays the reference reading of the current sentence
// and returns when its span has elapsed, when [Controller.StopPlayback] or
// navigation interrupts it, or when ctx ends. Starting a new playback stops
// the previous one.
func (c *Controller) PlayCurrentSentence(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case len(c.sentences) == 0:
		c.mu.Unlock()
		return ErrNoSentences
	case c.deps.Player == nil:
		c.mu.Unlock()
		return ErrNoPlayer
	}
	if c.stopPlay != nil {
		c.stopPlay()
	}
	s := c.sentences[c.index]
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.playGen++
	gen := c.playGen
	c.stopPlay = cancel
	c.playing = true
	c.mu.Unlock()

	if err := c.deps.Player.Play(pctx, c.cfg.Media, s.Start); err != nil {
		c.endPlayback(gen)
		return fmt.Errorf("practice: play sentence %d: %w", s.Index, err)
	}

	timer := time.NewTimer(s.Duration())
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-pctx.Done():
	}

	// A newer playback owns the player; leave it running.
	if c.endPlayback(gen) {
		if err := c.deps.Player.Pause(); err != nil {
			c.log.Warn("practice: pause playback", "err", err)
		}
	}
	return ctx.Err()
}

// endPlayback clears the playing flag if gen is still the latest playback.
func (c *Controller) endPlayback(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playGen != gen {
		return false
	}
	c.playing = false
	c.stopPlay = nil
	return true
}

// StopPlayback interrupts the running playback, if any.
func (c *Controller) StopPlayback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPlaybackLocked()
}

func (c *Controller) stopPlaybackLocked() {
	if c.stopPlay != nil {
		c.stopPlay()
	}
	c.playing = false
}

// ─── recording ───────────────────────────────────────────────────────────────

// StartRecording begins an attempt at the current sentence. It is only
// valid while listening. A cancelled start is not an error; the controller
// simply returns to listening.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case len(c.sentences) == 0:
		c.mu.Unlock()
		return ErrNoSentences
	case c.mode != ModeListening:
		c.mu.Unlock()
		return ErrNotListening
	}
	c.mode = ModeRecording
	epoch := c.epoch
	text := c.sentences[c.index].Text
	c.mu.Unlock()

	var opts []capture.StartOption
	if hints := hintWords(text); len(hints) > 0 {
		opts = append(opts, capture.WithHints(hints...))
	}
	err := c.deps.Recorder.Start(ctx, opts...)

	c.mu.Lock()
	current := c.epoch == epoch
	if err != nil {
		if current {
			c.mode = ModeListening
		}
		c.mu.Unlock()
		if errors.Is(err, capture.ErrCancelled) {
			return nil
		}
		return err
	}
	c.mu.Unlock()

	if !current {
		// Navigated away while the microphone was opening.
		c.deps.Recorder.Cancel()
	}
	return nil
}

// StopRecording ends the attempt, stores it on the sentence it was recorded
// for and compares it with the text. Stopping when nothing is recording is
// a no-op.
func (c *Controller) StopRecording(ctx context.Context) (err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.mode != ModeRecording {
		c.mu.Unlock()
		return nil
	}
	epoch := c.epoch
	idx := c.index
	c.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "practice.stop_recording")
	defer func() { observe.EndSpan(span, err) }()

	res, err := c.deps.Recorder.Stop(ctx)
	switch {
	case errors.Is(err, capture.ErrNoActiveRecording), errors.Is(err, capture.ErrCancelled):
		return nil
	case err != nil:
		c.mu.Lock()
		if c.epoch == epoch && c.mode == ModeRecording {
			c.mode = ModeListening
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		_ = res.Audio.Discard()
		return nil
	}
	s := &c.sentences[idx]
	cmp := c.comparator.Compare(s.Text, res.Transcript)
	previous := s.Recording
	s.Recording = res
	s.Comparison = &cmp
	s.Score = nil
	c.overall = c.overallLocked()
	c.mode = ModeReviewing
	c.mu.Unlock()

	if previous != nil && previous.Audio != nil {
		if err := previous.Audio.Discard(); err != nil {
			c.log.Warn("practice: discard previous recording", "sentence", idx, "err", err)
		}
	}
	c.metrics.ComparisonAccuracy.Record(ctx, cmp.Accuracy)
	observe.Logger(ctx).Info("practice: attempt recorded",
		"session_id", c.id,
		"sentence", idx,
		"accuracy", cmp.Accuracy,
		"missed", len(cmp.Missed),
		"extra", len(cmp.Extra),
	)
	return nil
}

// CancelRecording abandons the running attempt and returns to listening.
// The sentence keeps whatever it stored before.
func (c *Controller) CancelRecording() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.mode = ModeListening
	c.mu.Unlock()
	c.deps.Recorder.Cancel()
}

// ResetRecorder clears a failed recorder so recording can start again.
func (c *Controller) ResetRecorder() {
	c.deps.Recorder.Reset()
	c.mu.Lock()
	if c.mode == ModeRecording {
		c.epoch++
		c.mode = ModeListening
	}
	c.mu.Unlock()
}

// ─── scoring ─────────────────────────────────────────────────────────────────

// RequestPronunciationScore sends the current sentence's recording to the
// scoring provider. The request is bound to the sentence and recording
// current at call time and is not cancelled by navigation; if the recording
// was replaced by the time the score arrives, the score is dropped and
// [ErrScoreDiscarded] returned.
func (c *Controller) RequestPronunciationScore(ctx context.Context) (err error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.deps.Scorer == nil:
		c.mu.Unlock()
		return ErrScoringUnavailable
	case len(c.sentences) == 0 || c.sentences[c.index].Recording == nil:
		c.mu.Unlock()
		return ErrNoRecording
	}
	idx := c.index
	text := c.sentences[idx].Text
	rec := c.sentences[idx].Recording
	c.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "practice.score")
	defer func() { observe.EndSpan(span, err) }()

	wav, err := rec.Audio.ReadAll()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}

	start := time.Now()
	score, err := c.deps.Scorer.Score(ctx, scoring.Request{
		Audio:        wav,
		Format:       rec.Audio.Format,
		OriginalText: text,
		SpokenText:   rec.Transcript,
	})
	if err != nil {
		c.metrics.RecordScoring(ctx, observe.StatusError, time.Since(start))
		observe.Logger(ctx).Warn("practice: scoring failed", "session_id", c.id, "sentence", idx, "err", err)
		return fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}
	c.metrics.RecordScoring(ctx, observe.StatusOK, time.Since(start))

	c.mu.Lock()
	if c.closed || c.sentences[idx].Recording != rec {
		c.mu.Unlock()
		observe.Logger(ctx).Info("practice: dropping score for replaced recording",
			"session_id", c.id,
			"sentence", idx,
		)
		return ErrScoreDiscarded
	}
	c.sentences[idx].Score = score
	c.overall = c.overallLocked()
	c.mu.Unlock()
	return nil
}

// overallLocked is the mean Overall over scored sentences.
func (c *Controller) overallLocked() float64 {
	var sum float64
	n := 0
	for _, s := range c.sentences {
		if s.Score != nil {
			sum += s.Score.Overall
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ─── navigation ──────────────────────────────────────────────────────────────

// NextSentence moves to the following sentence. It reports false and does
// nothing at the end of the chapter.
func (c *Controller) NextSentence() bool {
	return c.navigate(func(cur int) int { return cur + 1 })
}

// PreviousSentence moves to the preceding sentence. It reports false and
// does nothing on the first sentence.
func (c *Controller) PreviousSentence() bool {
	return c.navigate(func(cur int) int { return cur - 1 })
}

// GoToSentence moves to sentence i. Out-of-range indexes are ignored.
func (c *Controller) GoToSentence(i int) bool {
	return c.navigate(func(int) int { return i })
}

// navigate abandons the current attempt and playback, moves to target(index)
// and clears the recorder. Stored results are untouched.
func (c *Controller) navigate(target func(cur int) int) bool {
	c.mu.Lock()
	i := target(c.index)
	if c.closed || i < 0 || i >= len(c.sentences) {
		c.mu.Unlock()
		return false
	}
	c.stopPlaybackLocked()
	c.epoch++
	c.index = i
	c.mode = ModeListening
	c.mu.Unlock()

	c.deps.Recorder.Reset()
	c.log.Debug("practice: moved to sentence", "sentence", i)
	return true
}

// ─── queries ─────────────────────────────────────────────────────────────────

// Summary aggregates the session so far.
func (c *Controller) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := Summary{TotalSentences: len(c.sentences), OverallScore: c.overall}
	var wordAcc float64
	for _, s := range c.sentences {
		if s.Recording != nil {
			sum.CompletedSentences++
			sum.PracticeTime += s.Recording.Duration
			if s.Comparison != nil {
				wordAcc += s.Comparison.Accuracy
			}
		}
		if s.Score != nil {
			sum.ScoredSentences++
			sum.AverageAccuracy += s.Score.Accuracy
			sum.AverageFluency += s.Score.Fluency
			sum.AverageRhythm += s.Score.Rhythm
		}
	}
	if n := float64(sum.ScoredSentences); n > 0 {
		sum.AverageAccuracy /= n
		sum.AverageFluency /= n
		sum.AverageRhythm /= n
	}
	if sum.CompletedSentences > 0 {
		sum.AverageWordAccuracy = wordAcc / float64(sum.CompletedSentences)
	}
	return sum
}

// SentenceAt returns the index of the sentence heard at offset in the
// chapter audio, or -1 when offset is outside the chapter.
func (c *Controller) SentenceAt(offset time.Duration) int {
	return segment.Lookup(c.spans, offset)
}

// Snapshot returns the controller's current state.
func (c *Controller) Snapshot() State {
	rec := c.deps.Recorder.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		SessionID:    c.id,
		Index:        c.index,
		Total:        len(c.sentences),
		Mode:         c.mode,
		Playing:      c.playing,
		Recorder:     rec,
		OverallScore: c.overall,
	}
	if len(c.sentences) > 0 {
		cur := c.sentences[c.index]
		st.Current = &cur
	}
	return st
}

// Sentences returns a copy of every sentence.
func (c *Controller) Sentences() []Sentence {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sentence, len(c.sentences))
	copy(out, c.sentences)
	return out
}

// Close ends the session: it stops playback, cancels any recording and
// deletes every stored recording. Further operations return [ErrClosed].
// Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.epoch++
	c.stopPlaybackLocked()
	var errs []error
	var artifacts []*capture.RecordingResult
	for _, s := range c.sentences {
		if s.Recording != nil {
			artifacts = append(artifacts, s.Recording)
		}
	}
	c.mu.Unlock()

	c.deps.Recorder.Cancel()
	for _, r := range artifacts {
		if r.Audio != nil {
			if err := r.Audio.Discard(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	c.metrics.ActiveSessions.Add(context.Background(), -1)
	c.log.Info("practice session closed", "recordings", len(artifacts))
	if len(errs) > 0 {
		return fmt.Errorf("practice: close: %w", errors.Join(errs...))
	}
	return nil
}
