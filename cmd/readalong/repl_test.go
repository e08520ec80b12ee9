package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/readalong/internal/capture"
	"github.com/MrWong99/readalong/internal/history"
	"github.com/MrWong99/readalong/internal/practice"
	"github.com/MrWong99/readalong/pkg/audio"
	audiomock "github.com/MrWong99/readalong/pkg/audio/mock"
	playmock "github.com/MrWong99/readalong/pkg/playback/mock"
	"github.com/MrWong99/readalong/pkg/provider/scoring"
	scoremock "github.com/MrWong99/readalong/pkg/provider/scoring/mock"
	"github.com/MrWong99/readalong/pkg/provider/stt"
	sttmock "github.com/MrWong99/readalong/pkg/provider/stt/mock"
)

type replHarness struct {
	mic    *audiomock.Capture
	stream *sttmock.Session
	scorer *scoremock.Provider
	player *playmock.Player
	ctrl   *practice.Controller
	rec    *capture.Session
}

func newREPLHarness(t *testing.T, chapter string, d time.Duration) *replHarness {
	t.Helper()
	h := &replHarness{
		mic:    audiomock.NewCapture(16),
		stream: sttmock.NewSession(),
		scorer: &scoremock.Provider{},
		player: &playmock.Player{},
	}
	h.rec = capture.New(capture.Config{
		Artifacts: audio.NewArtifactStore(t.TempDir()),
	}, capture.Deps{
		Authorizer: capture.StaticAuthorizer(true),
		Microphone: &audiomock.Microphone{Capture: h.mic},
		STT:        &sttmock.Provider{Session: h.stream},
	})
	if _, err := h.rec.RequestAuthorization(context.Background()); err != nil {
		t.Fatalf("RequestAuthorization: %v", err)
	}
	ctrl, err := practice.New(practice.Config{
		ChapterText:     chapter,
		ChapterDuration: d,
		Media:           "chapter.mp3",
	}, practice.Deps{
		Recorder: h.rec,
		Player:   h.player,
		Scorer:   h.scorer,
	})
	if err != nil {
		t.Fatalf("practice.New: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })
	h.ctrl = ctrl
	return h
}

func (h *replHarness) run(t *testing.T, script string) string {
	t.Helper()
	var out bytes.Buffer
	r := newREPL(h.ctrl, h.rec, h.player, strings.NewReader(script), &out)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

func pcm(n int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(800)))
	}
	return buf
}

func TestREPL_RecordAndScore(t *testing.T) {
	t.Parallel()
	h := newREPLHarness(t, "The garden grows. The dog ran.", 4*time.Second)
	h.stream.FinalizeResult = []stt.Transcript{{Text: "the gardan grows", Confidence: 0.9, Duration: time.Second}}
	h.scorer.Result = &scoring.Score{
		Overall: 0.8, Accuracy: 0.9, Fluency: 0.7, Rhythm: 0.6,
		Words:    []scoring.WordScore{{Word: "garden", Score: 0.4, Issue: "mispronounced"}},
		Feedback: "Stress the vowel.",
	}
	h.mic.Push(audio.AudioFrame{Data: pcm(160), SampleRate: 16000, Channels: 1})

	out := h.run(t, "record\nstop\nscore\nquit\n")

	for _, want := range []string{
		"[1/2] The garden grows",
		"you said: \"the gardan grows\"",
		"accuracy: 67%",
		"words: the garden~gardan grows",
		"sentence 1 score: overall 80%, accuracy 90%, fluency 70%, rhythm 60%",
		"garden           40% (mispronounced)",
		"Stress the vowel.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if h.scorer.CallCount() != 1 {
		t.Errorf("score calls = %d, want 1", h.scorer.CallCount())
	}
	if st := h.ctrl.Snapshot(); st.Mode != practice.ModeReviewing {
		t.Errorf("mode = %s, want reviewing", st.Mode)
	}
}

func TestSaveHistory(t *testing.T) {
	t.Parallel()
	h := newREPLHarness(t, "Read this aloud. Then this.", 2*time.Second)
	h.stream.FinalizeResult = []stt.Transcript{{Text: "read this aloud", Duration: time.Second}}
	hist := history.NewFileStore(filepath.Join(t.TempDir(), "history.jsonl"))

	saveHistory(hist, h.ctrl, "chapter.mp3")
	if recs, _ := hist.Records(); len(recs) != 0 {
		t.Fatalf("records = %d, want none before anything was recorded", len(recs))
	}

	h.run(t, "record\nstop\n")
	saveHistory(hist, h.ctrl, "chapter.mp3")

	last, ok, err := hist.Latest("chapter.mp3")
	if err != nil || !ok {
		t.Fatalf("Latest = %v, %v", ok, err)
	}
	if last.SessionID != h.ctrl.ID() || last.CompletedSentences != 1 || last.AverageWordAccuracy != 1 {
		t.Errorf("record = %+v", last)
	}
	if len(last.Sentences) != 1 || last.Sentences[0].Transcript != "read this aloud" {
		t.Errorf("sentences = %+v", last.Sentences)
	}
}

func TestREPL_QuitCancelsScoring(t *testing.T) {
	t.Parallel()
	h := newREPLHarness(t, "Hold on. Next.", 2*time.Second)
	h.stream.FinalizeResult = []stt.Transcript{{Text: "hold on", Duration: time.Second}}
	h.scorer.Block = make(chan struct{})
	h.mic.Push(audio.AudioFrame{Data: pcm(160), SampleRate: 16000, Channels: 1})

	start := time.Now()
	out := h.run(t, "record\nstop\nscore\nquit\n")

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("quit took %v with a score in flight", elapsed)
	}
	if strings.Contains(out, "scoring failed") {
		t.Errorf("cancelled score reported as a failure:\n%s", out)
	}
	if sc := h.ctrl.Sentences()[0].Score; sc != nil {
		t.Errorf("score = %+v, want none after quit", sc)
	}
}

func TestREPL_Navigation(t *testing.T) {
	t.Parallel()
	h := newREPLHarness(t, "One. Two. Three.", 3*time.Second)

	out := h.run(t, "next\ngoto 3\nnext\ngoto x\ngoto\nprev\nlist\n")

	for _, want := range []string{
		"[2/3] Two",
		"[3/3] Three",
		"no such sentence",
		"not a sentence number: \"x\"",
		"usage: goto N",
		">    2. Two",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := h.ctrl.Snapshot().Index; got != 1 {
		t.Errorf("index = %d, want 1", got)
	}
}

func TestREPL_Seek(t *testing.T) {
	t.Parallel()
	h := newREPLHarness(t, "One. Two. Three.", 3*time.Second)

	out := h.run(t, "seek 2500ms\nseek 1h\nseek soon\nsync\n")

	for _, want := range []string{
		"[3/3] Three",
		"1h0m0s is outside the chapter",
		"not a duration: \"soon\"",
		"the player does not report its position",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := h.ctrl.Snapshot().Index; got != 2 {
		t.Errorf("index = %d, want 2", got)
	}
}

// positionedPlayer reports a fixed playback offset.
type positionedPlayer struct {
	playmock.Player
	at time.Duration
}

func (p *positionedPlayer) Position() (time.Duration, bool) { return p.at, true }

func TestREPL_Sync(t *testing.T) {
	t.Parallel()
	h := newREPLHarness(t, "One. Two. Three.", 3*time.Second)

	var out bytes.Buffer
	r := newREPL(h.ctrl, h.rec, &positionedPlayer{at: 1200 * time.Millisecond}, strings.NewReader("sync\n"), &out)
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "[2/3] Two") {
		t.Errorf("output missing the synced sentence:\n%s", out.String())
	}
}

func TestREPL_Errors(t *testing.T) {
	t.Parallel()
	h := newREPLHarness(t, "Hello there.", time.Second)

	out := h.run(t, "stop\nscore\nbogus\nsummary\n")

	for _, want := range []string{
		"scoring failed:",
		"unknown command \"bogus\"",
		"completed 0 of 1 sentences",
		"no pronunciation scores yet",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if h.scorer.CallCount() != 0 {
		t.Errorf("score calls = %d, want 0 without a recording", h.scorer.CallCount())
	}
}

func TestREPL_Play(t *testing.T) {
	t.Parallel()
	h := newREPLHarness(t, "Short. Sentence.", 20*time.Millisecond)

	h.run(t, "next\nplay\n")

	plays := h.player.Plays()
	if len(plays) != 1 {
		t.Fatalf("plays = %d, want 1", len(plays))
	}
	if plays[0].Media != "chapter.mp3" || plays[0].At <= 0 {
		t.Errorf("play = %+v, want second sentence of chapter.mp3", plays[0])
	}
}

func TestREPL_ContextCancelled(t *testing.T) {
	t.Parallel()
	h := newREPLHarness(t, "Hello.", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	r := newREPL(h.ctrl, h.rec, h.player, blockingReader{}, &out)
	if err := r.run(ctx); err == nil {
		t.Fatal("run returned nil after cancellation")
	}
}

// blockingReader never yields input.
type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) { select {} }

func TestMeter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level float64
		want  string
	}{
		{0, "[..........]"},
		{0.5, "[#####.....]"},
		{1, "[##########]"},
		{1.7, "[##########]"},
		{-0.2, "[..........]"},
	}
	for _, tt := range tests {
		if got := meter(tt.level); got != tt.want {
			t.Errorf("meter(%v) = %q, want %q", tt.level, got, tt.want)
		}
	}
}
