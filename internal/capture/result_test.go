package capture

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

func TestBuildResult(t *testing.T) {
	t.Parallel()
	finals := []stt.Transcript{
		{Text: " jumps ", Confidence: 0.5, Timestamp: 2 * time.Second, Duration: time.Second},
		{Text: "", Confidence: 0.1, Timestamp: 3 * time.Second},
		{Text: "the fox", Confidence: 0.9, Timestamp: 0, Duration: -time.Second},
	}
	res := buildResult(nil, finals, "ignored", 3*time.Second)

	if res.Transcript != "the fox jumps" {
		t.Errorf("transcript = %q", res.Transcript)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want 2 (empty text skipped)", len(res.Segments))
	}
	if s := res.Segments[0]; s.Start != 0 || s.End != 0 {
		t.Errorf("negative duration not clamped: %+v", s)
	}
	if math.Abs(res.Confidence-0.7) > 1e-9 {
		t.Errorf("confidence = %v, want 0.7", res.Confidence)
	}
	if res.Duration != 3*time.Second {
		t.Errorf("duration = %v", res.Duration)
	}
}

func TestBuildResult_Empty(t *testing.T) {
	t.Parallel()
	res := buildResult(nil, nil, "", 0)
	if res.Transcript != "" || res.Confidence != 0 || len(res.Segments) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestBuildResult_WordLevel(t *testing.T) {
	t.Parallel()
	finals := []stt.Transcript{
		{Text: "over", Confidence: 0.4, Timestamp: 3 * time.Second, Duration: time.Second},
		{
			Text:       "the fox",
			Confidence: 0.99,
			Timestamp:  time.Second,
			Duration:   time.Second,
			Words: []stt.WordDetail{
				{Word: "the", Start: time.Second, End: 1300 * time.Millisecond, Confidence: 0.9},
				{Word: " ", Start: 1300 * time.Millisecond, Confidence: 0.1},
				{Word: "fox", Start: 1400 * time.Millisecond, End: 1200 * time.Millisecond, Confidence: 0.5},
			},
		},
	}
	res := buildResult(nil, finals, "", 4*time.Second)

	if res.Transcript != "the fox over" {
		t.Errorf("transcript = %q, want finals in stream order", res.Transcript)
	}
	want := []Segment{
		{Text: "the", Start: time.Second, End: 1300 * time.Millisecond, Confidence: 0.9},
		{Text: "fox", Start: 1400 * time.Millisecond, End: 1400 * time.Millisecond, Confidence: 0.5},
		{Text: "over", Start: 3 * time.Second, End: 4 * time.Second, Confidence: 0.4},
	}
	if len(res.Segments) != len(want) {
		t.Fatalf("segments = %+v, want %d", res.Segments, len(want))
	}
	for i, w := range want {
		if res.Segments[i] != w {
			t.Errorf("segment %d = %+v, want %+v", i, res.Segments[i], w)
		}
	}
	if math.Abs(res.Confidence-0.6) > 1e-9 {
		t.Errorf("confidence = %v, want the word mean 0.6", res.Confidence)
	}
}

func TestBuildResult_WordConfidenceIgnoresUtterance(t *testing.T) {
	t.Parallel()
	res := buildResult(nil, []stt.Transcript{{
		Text:       "the fox",
		Confidence: 0.99,
		Words: []stt.WordDetail{
			{Word: "the", Confidence: 0.9},
			{Word: "fox", Confidence: 0.5},
		},
	}}, "", time.Second)

	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want one per word", len(res.Segments))
	}
	if math.Abs(res.Confidence-0.7) > 1e-9 {
		t.Errorf("confidence = %v, want 0.7", res.Confidence)
	}
}
