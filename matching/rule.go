package matching

import (
	"math"
	"strings"
	"unicode"
)

// MatchRule decides whether two answers to the same prompt constitute a match.
// Implementations must be deterministic.
type MatchRule interface {
	Evaluate(initiatorAnswer, counterpartAnswer string) (matched bool, alignment int)
}

// TokenOverlapRule compares answers by the Jaccard overlap of their content words.
// Alignment is a percentage; answers match when it reaches Threshold.
type TokenOverlapRule struct {
	Threshold int
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "or": true, "of": true, "to": true,
	"i": true, "m": true, "s": true, "my": true, "me": true, "is": true, "it": true,
	"in": true, "on": true, "for": true, "with": true, "but": true, "so": true, "be": true,
	"would": true, "have": true, "that": true, "this": true, "definitely": true, "probably": true,
}

func (r TokenOverlapRule) Evaluate(initiatorAnswer, counterpartAnswer string) (bool, int) {
	a := contentWords(initiatorAnswer)
	b := contentWords(counterpartAnswer)
	alignment := jaccard(a, b)
	if alignment == 0 && normalize(initiatorAnswer) != "" && normalize(initiatorAnswer) == normalize(counterpartAnswer) {
		alignment = 100
	}
	return alignment >= r.Threshold && alignment > 0, alignment
}

func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), isSeparator), " ")
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func contentWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), isSeparator) {
		if !stopWords[w] {
			words[w] = true
		}
	}
	return words
}

func jaccard(a, b map[string]bool) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if b[w] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return int(math.Round(100 * float64(shared) / float64(union)))
}
