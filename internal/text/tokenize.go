// Package text holds the tokenizer and normalisation shared by duplicate
// detection and corpus analytics.
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Normalize trims the text, case-folds it and collapses whitespace runs to a single space.
// Identical normalized text always hashes identically.
func Normalize(s string) string {
	folded := cases.Fold().String(s)
	return strings.Join(strings.Fields(folded), " ")
}

// Tokenize splits s into alphanumeric runs, case-folded, keeping only tokens
// longer than one character that are not purely numeric. Stop words are kept.
func Tokenize(s string) []string {
	folded := cases.Fold().String(s)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) <= 1 || isNumeric(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// ContentWords returns the tokens that are not stop words.
func ContentWords(tokens []string) []string {
	words := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !IsStopWord(t) {
			words = append(words, t)
		}
	}
	return words
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
