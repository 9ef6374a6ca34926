package transcript

import (
	"strings"
	"unicode"
)

// capitalizeSentenceStarts walks text rune-by-rune, capitalizing the first
// letter of each sentence while leaving known lowercase abbreviations
// ("e.g.", "etc.") alone even when they happen to open a sentence.
func capitalizeSentenceStarts(text string) string {
	runes := []rune(text)

	var out strings.Builder
	out.Grow(len(text))

	atSentenceStart := true
	awaitingLetter := false
	sawSpaceSinceBoundary := false

	for i, r := range runes {
		switch {
		case atSentenceStart && unicode.IsLetter(r):
			if capitalizationAllowedAt(runes, i) {
				r = unicode.ToUpper(r)
			}
			atSentenceStart, awaitingLetter, sawSpaceSinceBoundary = false, false, false
		case awaitingLetter:
			switch {
			case unicode.IsSpace(r):
				sawSpaceSinceBoundary = true
			case unicode.IsLetter(r):
				if sawSpaceSinceBoundary && capitalizationAllowedAt(runes, i) {
					r = unicode.ToUpper(r)
				}
				awaitingLetter, sawSpaceSinceBoundary = false, false
			case unicode.IsDigit(r):
				awaitingLetter, sawSpaceSinceBoundary = false, false
			case isQuoteOrBracketRune(r):
				// A closing quote/bracket right after terminal punctuation
				// doesn't cancel the pending boundary: `. "Quote` still
				// capitalizes Quote.
			default:
				if !sawSpaceSinceBoundary {
					awaitingLetter, sawSpaceSinceBoundary = false, false
				}
			}
		}

		out.WriteRune(r)

		switch r {
		case '.':
			if isSentenceBoundary(runes, i) {
				awaitingLetter, sawSpaceSinceBoundary = true, false
			} else {
				awaitingLetter, sawSpaceSinceBoundary = false, false
			}
		case '!', '?':
			awaitingLetter, sawSpaceSinceBoundary = true, false
		}
	}

	return out.String()
}

// capitalizationAllowedAt reports whether the word starting at idx should be
// uppercased, i.e. it isn't a deliberately-lowercase abbreviation token.
func capitalizationAllowedAt(runes []rune, idx int) bool {
	token := strings.ToLower(strings.Trim(letterAndDotRunFrom(runes, idx), "."))
	if token == "" {
		return true
	}
	return !isKeptLowercase(token)
}

func letterAndDotRunFrom(runes []rune, idx int) string {
	if idx < 0 || idx >= len(runes) {
		return ""
	}

	end := idx
	for end < len(runes) {
		r := runes[end]
		if unicode.IsLetter(r) || r == '.' {
			end++
			continue
		}
		break
	}
	return string(runes[idx:end])
}
