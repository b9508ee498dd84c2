package main

import (
	"strings"
	"unicode"
)

// wordErrorRate is the word-level edit distance between reference and
// hypothesis divided by the reference length. Case and punctuation are
// ignored. An empty reference yields 0.
func wordErrorRate(reference, hypothesis string) float64 {
	ref := words(reference)
	hyp := words(hypothesis)
	if len(ref) == 0 {
		return 0
	}

	prev := make([]int, len(hyp)+1)
	curr := make([]int, len(hyp)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ref); i++ {
		curr[0] = i
		for j := 1; j <= len(hyp); j++ {
			cost := 1
			if ref[i-1] == hyp[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return float64(prev[len(hyp)]) / float64(len(ref))
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}
