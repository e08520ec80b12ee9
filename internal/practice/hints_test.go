package practice

import (
	"slices"
	"testing"
)

func TestHintWords(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"drops stopwords", "The fox is in the den.", []string{"den", "fox"}},
		{"deduplicates", "Run, Spot, run!", []string{"run", "spot"}},
		{"only stopwords", "It was the one.", []string{"one"}},
		{"nothing left", "And then it was.", []string{}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := hintWords(tt.text); !slices.Equal(got, tt.want) {
				t.Errorf("hintWords(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
