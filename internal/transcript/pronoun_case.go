package transcript

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// pronounIContractionPattern matches the standalone "i" in contractions
	// ASR text spells lowercase ("i'm", "i'll") but a transcript should not.
	pronounIContractionPattern = regexp.MustCompile(`\bi['â€™](?:m|d|ll|ve|re|s)\b`)
	// standaloneIPattern matches a bare lowercase "i" token.
	standaloneIPattern = regexp.MustCompile(`\bi\b`)
)

// capitalizeStandalonePronounI uppercases every bare "i" token, except ones
// that are actually part of an abbreviation or initialism like "i.e" or
// "u.s.i.90" rather than the first-person pronoun.
func capitalizeStandalonePronounI(text string) string {
	matches := standaloneIPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var out strings.Builder
	out.Grow(len(text))

	cursor := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		out.WriteString(text[cursor:start])
		if isPartOfInitialism(text, start, end) {
			out.WriteString(text[start:end])
		} else {
			out.WriteString("I")
		}
		cursor = end
	}
	out.WriteString(text[cursor:])
	return out.String()
}

// isPartOfInitialism recognizes two shapes that aren't the pronoun "I":
// a trailing-dot token immediately followed by another letter ("i.90" would
// be unusual, but "i.e" style abbreviations matter here), and a token
// sandwiched between two periods as in the "u.s.i.90" style highway name.
func isPartOfInitialism(text string, start int, end int) bool {
	if end+1 < len(text) && text[end] == '.' {
		nextRune, _ := utf8.DecodeRuneInString(text[end+1:])
		if unicode.IsLetter(nextRune) {
			return true
		}
	}

	if start > 1 && text[start-1] == '.' && end < len(text) && text[end] == '.' {
		prevRune, _ := utf8.DecodeLastRuneInString(text[:start-1])
		if unicode.IsLetter(prevRune) {
			return true
		}
	}

	return false
}
