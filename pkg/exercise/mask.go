package exercise

import "github.com/japaniel/lexercise/pkg/corpus"

// maskChar replaces highlighted characters in a cloze sentence.
const maskChar = '_'

// mask returns text with every rune inside one of the inclusive ranges
// replaced by maskChar. Ranges may overlap or run past the end of the text.
func mask(text string, ranges []corpus.Range) string {
	runes := []rune(text)
	for _, r := range ranges {
		start, end := r[0], r[1]
		if start < 0 {
			start = 0
		}
		for i := start; i <= end && i < len(runes); i++ {
			runes[i] = maskChar
		}
	}
	return string(runes)
}
