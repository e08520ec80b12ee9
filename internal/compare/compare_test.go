package compare

import (
	"math"
	"reflect"
	"testing"
)

func TestCompare_RoundTrip(t *testing.T) {
	t.Parallel()
	r := Compare("the quick brown fox", "the quick brown fox")
	if r.Accuracy != 1 {
		t.Errorf("Accuracy = %v, want 1", r.Accuracy)
	}
	if len(r.Missed) != 0 || len(r.Extra) != 0 {
		t.Errorf("Missed = %v, Extra = %v, want both empty", r.Missed, r.Extra)
	}
	if len(r.Matches) != 4 {
		t.Fatalf("len(Matches) = %d, want 4", len(r.Matches))
	}
	for _, m := range r.Matches {
		if !m.Correct || m.SpokenAs != "" {
			t.Errorf("match %+v, want exact", m)
		}
	}
}

func TestCompare_PartialMiss(t *testing.T) {
	t.Parallel()
	r := Compare("the quick brown fox", "the quick brown")
	if r.Accuracy != 0.75 {
		t.Errorf("Accuracy = %v, want 0.75", r.Accuracy)
	}
	if !reflect.DeepEqual(r.Missed, []string{"fox"}) {
		t.Errorf("Missed = %v, want [fox]", r.Missed)
	}
	if len(r.Extra) != 0 {
		t.Errorf("Extra = %v, want empty", r.Extra)
	}
	last := r.Matches[3]
	if last.Word != "fox" || last.Correct || last.SpokenAs != "" || !last.Missed() {
		t.Errorf("last match = %+v, want missed fox", last)
	}
}

func TestCompare_StrictThresholdBoundary(t *testing.T) {
	t.Parallel()
	// distance 1 over length 3 is 0.333..., which is not < 0.3.
	r := Compare("cat", "cet")
	if r.Accuracy != 0 {
		t.Errorf("Accuracy = %v, want 0", r.Accuracy)
	}
	if !reflect.DeepEqual(r.Missed, []string{"cat"}) {
		t.Errorf("Missed = %v, want [cat]", r.Missed)
	}
	if !reflect.DeepEqual(r.Extra, []string{"cet"}) {
		t.Errorf("Extra = %v, want [cet]", r.Extra)
	}
	if r.Matches[0].SpokenAs != "" {
		t.Errorf("cat should not be fuzzy-matched, got SpokenAs=%q", r.Matches[0].SpokenAs)
	}
}

func TestCompare_NearMiss(t *testing.T) {
	t.Parallel()
	r := Compare("The colour of the house", "the color of the horse")

	if len(r.Matches) != 5 {
		t.Fatalf("len(Matches) = %d, want 5", len(r.Matches))
	}
	colour := r.Matches[1]
	if colour.Correct || colour.SpokenAs != "color" {
		t.Errorf("colour = %+v, want near-miss spoken as color", colour)
	}
	if !colour.Phonetic {
		t.Errorf("colour/color should share a phonetic code")
	}
	house := r.Matches[4]
	if house.SpokenAs != "horse" {
		t.Errorf("house = %+v, want near-miss spoken as horse", house)
	}
	if house.Phonetic {
		t.Errorf("house/horse should not share a phonetic code")
	}
	if math.Abs(r.Accuracy-0.6) > 1e-9 {
		t.Errorf("Accuracy = %v, want 0.6 (near-misses are not correct)", r.Accuracy)
	}
	if len(r.Missed) != 0 || len(r.Extra) != 0 {
		t.Errorf("Missed = %v, Extra = %v, want both empty", r.Missed, r.Extra)
	}
}

func TestCompare_DuplicatesAndExtras(t *testing.T) {
	t.Parallel()
	r := Compare("no no no", "no um no um yes")
	if got := r.CorrectCount(); got != 2 {
		t.Errorf("CorrectCount = %d, want 2", got)
	}
	if !reflect.DeepEqual(r.Missed, []string{"no"}) {
		t.Errorf("Missed = %v, want [no]", r.Missed)
	}
	// Extra is a de-duplicated, sorted set.
	if !reflect.DeepEqual(r.Extra, []string{"um", "yes"}) {
		t.Errorf("Extra = %v, want [um yes]", r.Extra)
	}
}

func TestCompare_PositionInsensitive(t *testing.T) {
	t.Parallel()
	r := Compare("brown fox jumps", "jumps fox brown")
	if r.Accuracy != 1 {
		t.Errorf("Accuracy = %v, want 1 for reordered words", r.Accuracy)
	}
}

func TestCompare_EmptyInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, original, spoken string
		wantExtra              []string
	}{
		{"both empty", "", "", []string{}},
		{"empty original", "  ... ", "hello there", []string{"hello", "there"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := Compare(tc.original, tc.spoken)
			if r.Accuracy != 0 {
				t.Errorf("Accuracy = %v, want 0", r.Accuracy)
			}
			if len(r.Matches) != 0 {
				t.Errorf("Matches = %v, want none", r.Matches)
			}
			if !reflect.DeepEqual(r.Extra, tc.wantExtra) {
				t.Errorf("Extra = %v, want %v", r.Extra, tc.wantExtra)
			}
			if r.Missed == nil {
				t.Error("Missed should be an empty set, not nil")
			}
		})
	}

	r := Compare("hello world", "")
	if r.Accuracy != 0 || !reflect.DeepEqual(r.Missed, []string{"hello", "world"}) {
		t.Errorf("silent reading: Accuracy=%v Missed=%v", r.Accuracy, r.Missed)
	}
}

func TestCompare_AccuracyBoundsAndIdempotence(t *testing.T) {
	t.Parallel()
	pairs := [][2]string{
		{"a b c", "a a a a"},
		{"It's a dog-eat-dog world!", "its a dog eat dog world"},
		{"Über straße", "uber strasse"},
		{"one", "one one one one"},
		{"x y z", ""},
	}
	for _, p := range pairs {
		a := Compare(p[0], p[1])
		b := Compare(p[0], p[1])
		if !reflect.DeepEqual(a, b) {
			t.Errorf("Compare(%q, %q) not idempotent", p[0], p[1])
		}
		if a.Accuracy < 0 || a.Accuracy > 1 {
			t.Errorf("Compare(%q, %q).Accuracy = %v out of [0,1]", p[0], p[1], a.Accuracy)
		}
		if len(a.Matches) != len(Tokenize(p[0])) {
			t.Errorf("Compare(%q, %q): %d matches for %d words", p[0], p[1], len(a.Matches), len(Tokenize(p[0])))
		}
	}
}

func TestComparator_WithThreshold(t *testing.T) {
	t.Parallel()
	loose := New(WithThreshold(0.5))
	r := loose.Compare("cat", "cet")
	if r.Matches[0].SpokenAs != "cet" {
		t.Errorf("with threshold 0.5, cat should pair with cet: %+v", r.Matches[0])
	}

	strict := New(WithThreshold(0))
	r = strict.Compare("colour", "color")
	if r.Matches[0].SpokenAs != "" {
		t.Errorf("with threshold 0, no near-miss should be accepted: %+v", r.Matches[0])
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"  \"Quoted\"  (words) ", []string{"quoted", "words"}},
		{"don't stop-me", []string{"don't", "stop-me"}},
		{"-- ... $$", []string{}},
		{"", []string{}},
	}
	for _, tc := range tests {
		if got := Tokenize(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Tokenize(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestNormalizedDistance(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 0},
		{"cat", "cat", 0},
		{"cat", "cet", 1.0 / 3},
		{"cat", "", 1},
		{"kitten", "sitting", 3.0 / 7},
		{"straße", "strase", 1.0 / 6},
	}
	for _, tc := range tests {
		if got := NormalizedDistance(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("NormalizedDistance(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
