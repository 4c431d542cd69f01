package dedupe

import (
	"strings"
	"unicode"
)

// stopwords excluded from keyword sets. Tokens of length <= 3 are dropped
// regardless, so only longer function words need listing here.
var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "along": {}, "also": {},
	"around": {}, "because": {}, "been": {}, "before": {}, "being": {},
	"between": {}, "both": {}, "cannot": {}, "could": {}, "does": {},
	"doing": {}, "down": {}, "during": {}, "each": {}, "every": {},
	"from": {}, "have": {}, "having": {}, "here": {}, "into": {},
	"just": {}, "more": {}, "most": {}, "near": {}, "onto": {},
	"other": {}, "over": {}, "please": {}, "same": {}, "should": {},
	"since": {}, "some": {}, "such": {}, "than": {}, "that": {},
	"their": {}, "them": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "those": {}, "through": {}, "under": {},
	"until": {}, "very": {}, "want": {}, "were": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "while": {}, "will": {},
	"with": {}, "would": {}, "your": {},
}

// Keywords tokenizes text into a lowercase keyword set, excluding stopwords
// and tokens of three characters or fewer.
func Keywords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range splitWords(text) {
		if len([]rune(tok)) <= 3 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// JaccardOverlap computes |A ∩ B| / |A ∪ B| over two keyword sets.
// Two empty sets overlap fully by convention.
func JaccardOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// TextScore combines title similarity, description similarity, and keyword
// overlap into the weighted text sub-score:
//
//	0.4*titleSim + 0.4*descSim + 0.2*keywordJaccard
//
// Keyword sets are built over title+description of each side.
func TextScore(titleA, descA, titleB, descB string) float64 {
	titleSim := LevenshteinSimilarity(titleA, titleB)
	descSim := LevenshteinSimilarity(descA, descB)
	kwA := Keywords(titleA + " " + descA)
	kwB := Keywords(titleB + " " + descB)
	return 0.4*titleSim + 0.4*descSim + 0.2*JaccardOverlap(kwA, kwB)
}

// splitWords lowercases and splits on any non-letter/non-digit rune.
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
