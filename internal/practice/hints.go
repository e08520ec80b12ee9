package practice

import (
	"slices"

	"github.com/MrWong99/readalong/internal/compare"
)

// stopwords are never boosted; recognizers get them right unaided.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "had": true,
	"has": true, "have": true, "he": true, "her": true, "his": true, "i": true,
	"in": true, "is": true, "it": true, "its": true, "me": true, "my": true,
	"of": true, "on": true, "or": true, "she": true, "so": true, "that": true,
	"the": true, "their": true, "them": true, "then": true, "there": true,
	"they": true, "this": true, "to": true, "was": true, "we": true, "were": true,
	"with": true, "you": true, "your": true,
}

// hintWords returns the distinct content words of a sentence, sorted.
func hintWords(text string) []string {
	words := slices.DeleteFunc(compare.Tokenize(text), func(w string) bool {
		return stopwords[w]
	})
	slices.Sort(words)
	return slices.Compact(words)
}
