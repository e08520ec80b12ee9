package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/readalong/internal/capture"
	"github.com/MrWong99/readalong/internal/practice"
	"github.com/MrWong99/readalong/pkg/playback"
)

// positioner is implemented by players that report their playback offset.
type positioner interface {
	Position() (time.Duration, bool)
}

const helpText = `commands:
  play            play the current sentence
  hush            stop playback
  record          start recording the current sentence
  stop            stop recording and compare
  cancel          discard the recording in progress
  reset           clear a recorder error
  score           request a pronunciation score
  next, prev      move between sentences
  goto N          jump to sentence N (1-based)
  seek T          jump to the sentence heard at T (e.g. 1m20s)
  sync            jump to the sentence the player is at
  list            list all sentences
  status          show the session state
  summary         show the session summary
  help            show this help
  quit            leave`

// repl drives a practice session from line-oriented text input.
type repl struct {
	ctrl *practice.Controller
	rec  *capture.Session
	pos  positioner
	in   io.Reader

	outMu sync.Mutex
	out   io.Writer

	// background holds playback and scoring calls.
	background sync.WaitGroup
}

func newREPL(ctrl *practice.Controller, rec *capture.Session, player playback.Player, in io.Reader, out io.Writer) *repl {
	r := &repl{ctrl: ctrl, rec: rec, in: in, out: out}
	if p, ok := player.(positioner); ok {
		r.pos = p
	}
	return r
}

func (r *repl) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// run reads commands until quit, end of input or ctx ends. Playback and
// scoring still in flight are cancelled and waited for before it returns.
func (r *repl) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var printer sync.WaitGroup
	printer.Go(func() { r.printUpdates(ctx) })

	defer func() {
		r.ctrl.StopPlayback()
		cancel()
		r.background.Wait()
		printer.Wait()
	}()

	r.printf("%s\n", helpText)
	r.printCurrent()
	for {
		r.printf("> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := r.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// exec runs one command and reports whether the user asked to quit.
func (r *repl) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch cmd := strings.ToLower(fields[0]); cmd {
	case "help", "?":
		r.printf("%s\n", helpText)
	case "quit", "exit", "q":
		return true
	case "status":
		r.printStatus()
	case "list":
		r.printList()
	case "summary":
		r.printSummary()
	case "play":
		r.background.Go(func() {
			if err := r.ctrl.PlayCurrentSentence(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.printf("playback failed: %v\n", err)
			}
		})
	case "hush":
		r.ctrl.StopPlayback()
	case "record":
		if err := r.ctrl.StartRecording(ctx); err != nil {
			r.printError("cannot record", err)
			return false
		}
		r.printf("recording, read the sentence aloud then type 'stop'\n")
	case "stop":
		if err := r.ctrl.StopRecording(ctx); err != nil {
			r.printError("recording failed", err)
			return false
		}
		r.printReview()
	case "cancel":
		r.ctrl.CancelRecording()
		r.printf("recording discarded\n")
	case "reset":
		r.ctrl.ResetRecorder()
		r.printf("recorder reset\n")
	case "score":
		idx := r.ctrl.Snapshot().Index
		r.printf("scoring sentence %d...\n", idx+1)
		r.background.Go(func() { r.score(ctx, idx) })
	case "next":
		r.move(r.ctrl.NextSentence())
	case "prev":
		r.move(r.ctrl.PreviousSentence())
	case "goto":
		if len(fields) != 2 {
			r.printf("usage: goto N\n")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			r.printf("not a sentence number: %q\n", fields[1])
			return false
		}
		r.move(r.ctrl.GoToSentence(n - 1))
	case "seek":
		if len(fields) != 2 {
			r.printf("usage: seek T\n")
			return false
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil {
			r.printf("not a duration: %q\n", fields[1])
			return false
		}
		r.seek(d)
	case "sync":
		if r.pos == nil {
			r.printf("the player does not report its position\n")
			return false
		}
		d, _ := r.pos.Position()
		r.seek(d)
	default:
		r.printf("unknown command %q, type 'help'\n", cmd)
	}
	return false
}

func (r *repl) move(moved bool) {
	if !moved {
		r.printf("no such sentence\n")
		return
	}
	r.printCurrent()
}

func (r *repl) seek(offset time.Duration) {
	idx := r.ctrl.SentenceAt(offset)
	if idx < 0 {
		r.printf("%s is outside the chapter\n", offset)
		return
	}
	r.move(r.ctrl.GoToSentence(idx))
}

func (r *repl) score(ctx context.Context, idx int) {
	err := r.ctrl.RequestPronunciationScore(ctx)
	switch {
	case errors.Is(err, practice.ErrScoreDiscarded):
		r.printf("sentence %d was re-recorded; score discarded\n", idx+1)
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		r.printError("scoring failed", err)
		return
	}
	sentences := r.ctrl.Sentences()
	if idx >= len(sentences) || sentences[idx].Score == nil {
		return
	}
	sc := sentences[idx].Score
	r.printf("sentence %d score: overall %s, accuracy %s, fluency %s, rhythm %s\n",
		idx+1, pct(sc.Overall), pct(sc.Accuracy), pct(sc.Fluency), pct(sc.Rhythm))
	for _, w := range sc.Words {
		if w.Issue != "" {
			r.printf("  %-16s %s (%s)\n", w.Word, pct(w.Score), w.Issue)
		}
	}
	if sc.Feedback != "" {
		r.printf("  %s\n", sc.Feedback)
	}
}

// printUpdates echoes live partial transcripts while recording. Level
// updates are too frequent for a terminal and are shown by 'status' instead.
func (r *repl) printUpdates(ctx context.Context) {
	updates := r.rec.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			switch u.Kind {
			case capture.UpdatePartial:
				r.printf("  … %s\n", u.Transcript)
			case capture.UpdateFinal:
				slog.Debug("final transcript", "attempt", u.Attempt, "text", u.Transcript)
			}
		}
	}
}

// captureFailures are the recorder errors with a user-facing message.
var captureFailures = []error{
	capture.ErrPermissionDenied,
	capture.ErrCaptureInitFailure,
	capture.ErrRecognizerUnavailable,
	capture.ErrAlreadyActive,
	capture.ErrNeedsReset,
}

func (r *repl) printError(prefix string, err error) {
	for _, target := range captureFailures {
		if errors.Is(err, target) {
			r.printf("%s: %s\n", prefix, capture.UserMessage(err))
			return
		}
	}
	r.printf("%s: %v\n", prefix, err)
}

func (r *repl) printCurrent() {
	st := r.ctrl.Snapshot()
	if st.Current == nil {
		r.printf("the chapter has no sentences\n")
		return
	}
	r.printf("[%d/%d] %s\n", st.Index+1, st.Total, st.Current.Text)
}

func (r *repl) printStatus() {
	st := r.ctrl.Snapshot()
	r.printCurrent()
	r.printf("mode: %s, playing: %t, recorder: %s", st.Mode, st.Playing, st.Recorder.State)
	if st.Recorder.State == capture.StateRecording {
		r.printf(", level: %s, elapsed: %s", meter(st.Recorder.Level), st.Recorder.Elapsed.Round(100*time.Millisecond))
	}
	r.printf("\n")
	if st.Recorder.Err != nil {
		r.printError("last error", st.Recorder.Err)
	}
}

func (r *repl) printList() {
	cur := r.ctrl.Snapshot().Index
	for _, s := range r.ctrl.Sentences() {
		marker := " "
		if s.Index == cur {
			marker = ">"
		}
		done := " "
		if s.Completed() {
			done = "✓"
		}
		r.printf("%s%s %3d. %s\n", marker, done, s.Index+1, s.Text)
	}
}

func (r *repl) printReview() {
	cur := r.ctrl.Snapshot().Current
	if cur == nil || cur.Recording == nil || cur.Comparison == nil {
		return
	}
	cmp := cur.Comparison
	r.printf("you said: %q\n", cur.Recording.Transcript)
	r.printf("accuracy: %s\n", pct(cmp.Accuracy))
	var words []string
	for _, m := range cmp.Matches {
		switch {
		case m.Correct:
			words = append(words, m.Word)
		case m.SpokenAs != "":
			words = append(words, m.Word+"~"+m.SpokenAs)
		default:
			words = append(words, "_"+m.Word+"_")
		}
	}
	r.printf("words: %s\n", strings.Join(words, " "))
	if len(cmp.Missed) > 0 {
		r.printf("missed: %s\n", strings.Join(cmp.Missed, ", "))
	}
	if len(cmp.Extra) > 0 {
		r.printf("extra: %s\n", strings.Join(cmp.Extra, ", "))
	}
}

func (r *repl) printSummary() {
	s := r.ctrl.Summary()
	r.printf("completed %d of %d sentences, practice time %s\n",
		s.CompletedSentences, s.TotalSentences, s.PracticeTime.Round(time.Second))
	r.printf("word accuracy: %s\n", pct(s.AverageWordAccuracy))
	if s.ScoredSentences == 0 {
		r.printf("no pronunciation scores yet\n")
		return
	}
	r.printf("scored %d: overall %s, accuracy %s, fluency %s, rhythm %s\n",
		s.ScoredSentences, pct(s.OverallScore), pct(s.AverageAccuracy), pct(s.AverageFluency), pct(s.AverageRhythm))
}

func pct(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 0, 64) + "%"
}

// meter renders a 0–1 level as a ten-cell bar.
func meter(level float64) string {
	n := int(level*10 + 0.5)
	n = min(max(n, 0), 10)
	return "[" + strings.Repeat("#", n) + strings.Repeat(".", 10-n) + "]"
}
