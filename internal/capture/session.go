// Package capture records one spoken attempt at a time: it opens the
// microphone, streams the audio to a speech recognizer, writes a WAV
// artifact, and reports the input level and live transcript while the user
// speaks.
//
// A [Session] is a small state machine (see [State]). Only one recording is
// active at a time; Start, Stop, Cancel and Reset are safe to call from any
// goroutine. Live progress is published on [Session.Updates] without ever
// blocking the pipeline, and [Session.Snapshot] is the authoritative view.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/pkg/audio"
	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// Defaults applied by [New] to zero Config fields.
const (
	DefaultLevelInterval   = 50 * time.Millisecond
	DefaultFinalizeTimeout = 5 * time.Second
	DefaultUpdateBuffer    = 32
)

// Config tunes a capture session.
type Config struct {
	// Format is the format the recognizer and the artifact receive. Frames
	// from the microphone are converted to it. Zero means 16 kHz mono.
	Format audio.Format

	// Language is passed to the recognizer. Empty uses its default.
	Language string

	// LevelInterval is the period of UpdateLevel events.
	LevelInterval time.Duration

	// MinDecibels is the floor of the level window. Zero means
	// [audio.DefaultMinDecibels].
	MinDecibels float64

	// FinalizeTimeout bounds how long Stop waits for the last final.
	FinalizeTimeout time.Duration

	// UpdateBuffer is the capacity of the Updates channel.
	UpdateBuffer int

	// Artifacts receives the WAV files. Nil uses a store in the default
	// temp directory.
	Artifacts *audio.ArtifactStore

	// RecognizerName labels recognizer metrics. Empty means "stt".
	RecognizerName string
}

// Deps are the collaborators of a Session.
type Deps struct {
	// Authorizer grants microphone access. Nil denies every request.
	Authorizer Authorizer
	Microphone audio.Microphone
	STT        stt.Provider

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// StartOption adjusts a single recording.
type StartOption func(*startOptions)

type startOptions struct {
	hints []string
}

// WithHints passes the words the speaker is expected to say to the
// recognizer as keyword boosts.
func WithHints(words ...string) StartOption {
	return func(o *startOptions) {
		o.hints = append(o.hints, words...)
	}
}

// Session is a single-recording capture pipeline.
type Session struct {
	cfg       Config
	deps      Deps
	metrics   *observe.Metrics
	artifacts *audio.ArtifactStore
	updates   chan Update

	mu         sync.Mutex
	state      State
	authorized bool
	err        error
	attempt    uint64
	prep       *preparation
	rec        *recording
	level      float64
	transcript string
	elapsed    time.Duration
}

type preparation struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an idle session.
func New(cfg Config, deps Deps) *Session {
	if cfg.Format.SampleRate <= 0 {
		cfg.Format.SampleRate = 16000
	}
	if cfg.Format.Channels <= 0 {
		cfg.Format.Channels = 1
	}
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = DefaultLevelInterval
	}
	if cfg.MinDecibels >= 0 {
		cfg.MinDecibels = audio.DefaultMinDecibels
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = DefaultUpdateBuffer
	}
	if cfg.RecognizerName == "" {
		cfg.RecognizerName = "stt"
	}
	s := &Session{
		cfg:       cfg,
		deps:      deps,
		metrics:   deps.Metrics,
		artifacts: cfg.Artifacts,
		updates:   make(chan Update, cfg.UpdateBuffer),
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.artifacts == nil {
		s.artifacts = audio.NewArtifactStore("")
	}
	return s
}

// Updates returns the live progress channel. It is shared by every
// recording of the session and never closed.
func (s *Session) Updates() <-chan Update { return s.updates }

// RequestAuthorization asks the Authorizer for access and remembers the
// answer.
func (s *Session) RequestAuthorization(ctx context.Context) (bool, error) {
	granted := false
	if s.deps.Authorizer != nil {
		var err error
		granted, err = s.deps.Authorizer.Authorize(ctx)
		if err != nil {
			return false, fmt.Errorf("capture: request authorization: %w", err)
		}
	}
	s.mu.Lock()
	s.authorized = granted
	s.mu.Unlock()
	if !granted {
		slog.Warn("capture: authorization denied")
	}
	return granted, nil
}

// Start begins a recording. It returns once the microphone and the
// recognizer are running; the recording outlives ctx.
func (s *Session) Start(ctx context.Context, opts ...StartOption) (err error) {
	ctx, span := observe.StartSpan(ctx, "capture.start")
	defer func() { observe.EndSpan(span, err) }()

	var so startOptions
	for _, o := range opts {
		o(&so)
	}

	s.mu.Lock()
	switch {
	case s.state.Active():
		s.mu.Unlock()
		return ErrAlreadyActive
	case s.state == StateError:
		s.mu.Unlock()
		return ErrNeedsReset
	case !s.authorized:
		s.failLocked(ErrPermissionDenied)
		s.mu.Unlock()
		s.metrics.RecordRecording(ctx, observe.StatusFailed, 0)
		return ErrPermissionDenied
	}
	s.attempt++
	id := s.attempt
	s.clearLocked()
	s.state = StatePreparing
	recCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	prep := &preparation{cancel: cancel, done: make(chan struct{})}
	s.prep = prep
	s.mu.Unlock()
	defer close(prep.done)

	// Until the recording is running, the caller's ctx may abort it.
	stopWatch := context.AfterFunc(ctx, cancel)
	r, err := s.prepare(recCtx, id, so)
	if !stopWatch() {
		cancel()
	}

	s.mu.Lock()
	if s.attempt != id || recCtx.Err() != nil {
		if s.attempt == id {
			s.state = StateIdle
			s.prep = nil
		}
		s.mu.Unlock()
		cancel()
		if r != nil {
			r.discard()
		}
		s.metrics.RecordRecording(ctx, observe.StatusCancelled, 0)
		return ErrCancelled
	}
	s.prep = nil
	if err != nil {
		s.failLocked(err)
		s.mu.Unlock()
		cancel()
		s.metrics.RecordRecording(ctx, observe.StatusFailed, 0)
		observe.Logger(ctx).Error("capture: start failed", "attempt", id, "err", err)
		return err
	}
	r.ctx, r.cancel = recCtx, cancel
	r.started = time.Now()
	s.rec = r
	s.state = StateRecording
	s.metrics.ActiveRecordings.Add(ctx, 1)
	r.group.Go(func() error { s.pump(r); return nil })
	r.group.Go(func() error { s.consumeTranscripts(r); return nil })
	r.group.Go(func() error { s.tickLevel(r); return nil })
	s.mu.Unlock()

	observe.Logger(ctx).Info("capture: recording started",
		"attempt", id,
		"format", s.cfg.Format.String(),
	)
	return nil
}

// prepare acquires the microphone, the artifact and the recognizer stream.
// On error everything acquired so far is released.
func (s *Session) prepare(ctx context.Context, id uint64, so startOptions) (*recording, error) {
	capt, err := s.deps.Microphone.Open(ctx, s.cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: open microphone: %w", ErrCaptureInitFailure, err)
	}
	w, err := s.artifacts.Create(s.cfg.Format)
	if err != nil {
		_ = capt.Close()
		return nil, fmt.Errorf("%w: %w", ErrCaptureInitFailure, err)
	}

	sc := stt.StreamConfig{
		SampleRate: s.cfg.Format.SampleRate,
		Channels:   s.cfg.Format.Channels,
		Language:   s.cfg.Language,
	}
	for _, h := range so.hints {
		sc.Keywords = append(sc.Keywords, stt.KeywordBoost{Keyword: h, Boost: 1})
	}
	stream, err := s.deps.STT.StartStream(ctx, sc)
	if err != nil {
		_ = capt.Close()
		_ = w.Abort()
		s.metrics.RecordProviderRequest(ctx, s.cfg.RecognizerName, "stt", observe.StatusError)
		return nil, fmt.Errorf("%w: %w", ErrRecognizerUnavailable, err)
	}
	s.metrics.RecordProviderRequest(ctx, s.cfg.RecognizerName, "stt", observe.StatusOK)

	return &recording{
		id:       id,
		capture:  capt,
		stream:   stream,
		writer:   w,
		conv:     &audio.Converter{Target: s.cfg.Format},
		group:    &errgroup.Group{},
		pumpDone: make(chan struct{}),
		stopping: make(chan struct{}),
		settled:  make(chan struct{}),
	}, nil
}

// Stop ends the recording and returns its artifact and transcript. The
// caller owns the returned artifact.
func (s *Session) Stop(ctx context.Context) (res *RecordingResult, err error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil, ErrNoActiveRecording
	}
	r := s.rec
	s.state = StateProcessing
	s.mu.Unlock()
	defer close(r.settled)

	ctx, span := observe.StartSpan(ctx, "capture.stop")
	defer func() { observe.EndSpan(span, err) }()

	elapsed := time.Since(r.started)
	r.markStopping()
	_ = r.capture.Close()
	select {
	case <-r.pumpDone:
	case <-ctx.Done():
		r.cancel()
		<-r.pumpDone
	}

	s.finalize(ctx, r)
	if err := r.stream.Close(); err != nil {
		slog.Debug("capture: close recognizer stream", "err", err)
	}

	waited := make(chan struct{})
	go func() {
		_ = r.group.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		r.cancel()
		<-waited
	}
	r.cancel()

	a, commitErr := r.writer.Commit()

	s.mu.Lock()
	if s.attempt != r.id {
		s.mu.Unlock()
		if a != nil {
			_ = a.Discard()
		}
		return nil, ErrCancelled
	}
	s.rec = nil
	if commitErr != nil {
		err := fmt.Errorf("capture: save recording: %w", commitErr)
		s.failLocked(err)
		s.mu.Unlock()
		r.release(ctx, s.metrics)
		s.metrics.RecordRecording(ctx, observe.StatusFailed, 0)
		return nil, err
	}
	res = buildResult(a, r.finals, r.partial, elapsed)
	s.state = StateFinished
	s.transcript = res.Transcript
	s.elapsed = elapsed
	s.level = 0
	s.mu.Unlock()

	r.release(ctx, s.metrics)
	s.metrics.RecordRecording(ctx, observe.StatusFinished, elapsed)
	observe.Logger(ctx).Info("capture: recording finished",
		"attempt", r.id,
		"duration", elapsed,
		"segments", len(res.Segments),
		"bytes", a.Size,
	)
	return res, nil
}

// finalize asks the recognizer for its last finals. Failures are logged;
// Stop still returns what was committed so far.
func (s *Session) finalize(ctx context.Context, r *recording) {
	fctx, cancel := context.WithTimeout(ctx, s.cfg.FinalizeTimeout)
	defer cancel()
	stopWatch := context.AfterFunc(r.ctx, cancel)
	defer stopWatch()

	start := time.Now()
	err := r.stream.Finalize(fctx)
	s.metrics.FinalizeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil && !errors.Is(err, stt.ErrSessionClosed) {
		s.metrics.RecordProviderError(ctx, s.cfg.RecognizerName, "stt")
		observe.Logger(ctx).Warn("capture: finalize recognizer", "attempt", r.id, "err", err)
	}
}

// Cancel abandons the active attempt, deletes its artifact and returns to
// idle. It returns once every resource of the attempt is released. Cancel
// is a no-op when nothing is active, including the error state.
func (s *Session) Cancel() {
	s.mu.Lock()
	var (
		prep       *preparation
		r          *recording
		processing bool
	)
	switch s.state {
	case StatePreparing:
		prep = s.prep
		s.prep = nil
	case StateRecording, StateProcessing:
		r = s.rec
		processing = s.state == StateProcessing
		s.rec = nil
	default:
		s.mu.Unlock()
		return
	}
	s.attempt++
	s.state = StateIdle
	s.level = 0
	s.mu.Unlock()

	if prep != nil {
		prep.cancel()
		<-prep.done
		return
	}
	r.teardown()
	if processing {
		<-r.settled
	}
	_ = r.writer.Abort()
	r.release(context.Background(), s.metrics)
	s.metrics.RecordRecording(context.Background(), observe.StatusCancelled, 0)
	slog.Info("capture: recording cancelled", "attempt", r.id)
}

// Reset cancels any active attempt and clears the transcript, level and
// error so the next Start begins from idle.
func (s *Session) Reset() {
	s.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Active() {
		// A new attempt started between Cancel and here.
		return
	}
	s.state = StateIdle
	s.clearLocked()
	for {
		select {
		case <-s.updates:
		default:
			return
		}
	}
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:      s.state,
		Attempt:    s.attempt,
		Authorized: s.authorized,
		Err:        s.err,
		Level:      s.level,
		Transcript: s.transcript,
		Elapsed:    s.elapsed,
	}
	if s.rec != nil && s.state.Active() {
		snap.Elapsed = time.Since(s.rec.started)
	}
	return snap
}

func (s *Session) failLocked(err error) {
	s.state = StateError
	s.err = err
	s.level = 0
}

func (s *Session) clearLocked() {
	s.err = nil
	s.level = 0
	s.transcript = ""
	s.elapsed = 0
}

// publishLocked offers u to the Updates channel without blocking. When the
// buffer is full a level sample is dropped outright, while a transcript
// update evicts the oldest queued update to make room.
func (s *Session) publishLocked(u Update) {
	select {
	case s.updates <- u:
		return
	default:
	}
	ctx := context.Background()
	if u.Kind == UpdateLevel {
		s.metrics.RecordDroppedUpdate(ctx, u.Kind.String())
		return
	}
	select {
	case old := <-s.updates:
		s.metrics.RecordDroppedUpdate(ctx, old.Kind.String())
	default:
	}
	select {
	case s.updates <- u:
	default:
		s.metrics.RecordDroppedUpdate(ctx, u.Kind.String())
	}
}

// pump moves microphone frames into the artifact and the recognizer and
// samples the input level.
func (s *Session) pump(r *recording) {
	defer close(r.pumpDone)
	frames := r.capture.Frames()
	sendFailed := false
	for {
		var (
			frame audio.AudioFrame
			ok    bool
		)
		select {
		case frame, ok = <-frames:
		case <-r.ctx.Done():
			return
		}
		if !ok {
			if !r.isStopping() {
				slog.Warn("capture: microphone stream ended while recording", "attempt", r.id)
			}
			return
		}

		frame = r.conv.Convert(frame)
		if len(frame.Data) == 0 {
			continue
		}
		if _, err := r.writer.Write(frame.Data); err != nil && r.ctx.Err() == nil {
			slog.Error("capture: write artifact", "attempt", r.id, "err", err)
		}
		if err := r.stream.SendAudio(frame.Data); err != nil && r.ctx.Err() == nil && !sendFailed {
			// Logged once per recording; the stream usually stays broken.
			sendFailed = true
			s.metrics.RecordProviderError(context.Background(), s.cfg.RecognizerName, "stt")
			slog.Warn("capture: send audio to recognizer", "attempt", r.id, "err", err)
		}
		r.setLevel(audio.Level(frame.Data, s.cfg.MinDecibels))
	}
}

// consumeTranscripts folds recognizer output into the live transcript.
func (s *Session) consumeTranscripts(r *recording) {
	partials, finals := r.stream.Partials(), r.stream.Finals()
	for partials != nil || finals != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			s.onTranscript(r, t, UpdatePartial)
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			s.onTranscript(r, t, UpdateFinal)
		case <-r.ctx.Done():
			return
		}
	}
	if !r.isStopping() {
		s.metrics.RecordProviderError(context.Background(), s.cfg.RecognizerName, "stt")
		slog.Warn("capture: recognizer stream ended while recording", "attempt", r.id)
	}
}

func (s *Session) onTranscript(r *recording, t stt.Transcript, kind UpdateKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt != r.id {
		return
	}
	if kind == UpdateFinal {
		r.finals = append(r.finals, t)
		r.partial = ""
	} else {
		r.partial = t.Text
	}
	s.transcript = strings.TrimSpace(stt.JoinText(r.finals) + " " + strings.TrimSpace(r.partial))
	s.publishLocked(Update{
		Kind:       kind,
		Attempt:    r.id,
		Transcript: s.transcript,
		Elapsed:    time.Since(r.started),
	})
}

// tickLevel publishes the most recent level sample every LevelInterval.
func (s *Session) tickLevel(r *recording) {
	t := time.NewTicker(s.cfg.LevelInterval)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.stopping:
			return
		case <-t.C:
		}
		lvl := r.getLevel()
		s.mu.Lock()
		if s.attempt == r.id && s.state == StateRecording {
			s.level = lvl
			s.publishLocked(Update{
				Kind:    UpdateLevel,
				Attempt: r.id,
				Level:   lvl,
				Elapsed: time.Since(r.started),
			})
		}
		s.mu.Unlock()
	}
}

// recording holds the resources of one running attempt.
type recording struct {
	id      uint64
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	capture audio.Capture
	stream  stt.SessionHandle
	writer  *audio.ArtifactWriter
	conv    *audio.Converter
	group   *errgroup.Group

	pumpDone chan struct{}
	stopping chan struct{}
	stopOnce sync.Once
	settled  chan struct{}

	level       atomic.Uint64
	releaseOnce sync.Once

	// Guarded by Session.mu.
	finals  []stt.Transcript
	partial string
}

func (r *recording) markStopping() { r.stopOnce.Do(func() { close(r.stopping) }) }

func (r *recording) isStopping() bool {
	select {
	case <-r.stopping:
		return true
	default:
		return false
	}
}

func (r *recording) setLevel(v float64) { r.level.Store(math.Float64bits(v)) }
func (r *recording) getLevel() float64  { return math.Float64frombits(r.level.Load()) }

// teardown stops every goroutine of the attempt and closes its devices.
func (r *recording) teardown() {
	r.markStopping()
	r.cancel()
	_ = r.capture.Close()
	_ = r.stream.Close()
	_ = r.group.Wait()
}

// discard releases the resources of an attempt that never started running.
func (r *recording) discard() {
	_ = r.capture.Close()
	_ = r.stream.Close()
	_ = r.writer.Abort()
}

func (r *recording) release(ctx context.Context, m *observe.Metrics) {
	r.releaseOnce.Do(func() { m.ActiveRecordings.Add(ctx, -1) })
}
