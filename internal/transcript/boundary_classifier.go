package transcript

import (
	"strings"
	"unicode"
)

// abbreviationDisposition records how a known abbreviation token should be
// treated when a period immediately follows it: as never terminal on its
// own (a title like "Dr.", a unit like "hrs."), or as ambiguous, meaning the
// word after the period decides whether the period actually ends a sentence.
type abbreviationDisposition uint8

const (
	dispositionNeverTerminal abbreviationDisposition = iota
	dispositionAmbiguous
)

// boundaryRationale is attached to a classifyPeriod result purely to make
// the decision inspectable in tests/debugging; callers of isSentenceBoundary
// only look at the bool.
type boundaryRationale string

const (
	rationaleDefault            boundaryRationale = "default"
	rationaleEmbeddedInToken    boundaryRationale = "embedded-token"
	rationaleDecimalPoint       boundaryRationale = "decimal"
	rationaleInitialism         boundaryRationale = "initialism"
	rationaleInitialismResolved boundaryRationale = "initialism-resolved"
	rationaleKnownAbbreviation  boundaryRationale = "known-abbreviation"
	rationaleAmbiguousHeld      boundaryRationale = "ambiguous-held"
	rationaleAmbiguousResolved  boundaryRationale = "ambiguous-resolved"
)

var (
	// neverCapitalized are abbreviation tokens that stay lowercase even when
	// a capitalization pass would otherwise treat them as a sentence start.
	neverCapitalized = map[string]struct{}{
		"e.g": {},
		"etc": {},
		"i.e": {},
		"vs":  {},
	}

	// dictationAbbreviations catalogs tokens a dictation pass sees often
	// enough to special-case, split into what they do at a trailing period.
	dictationAbbreviations = map[string]abbreviationDisposition{
		// Latin/editorial.
		"e.g": dispositionNeverTerminal,
		"i.e": dispositionNeverTerminal,
		"cf":  dispositionNeverTerminal,
		"etc": dispositionAmbiguous,
		"vs":  dispositionAmbiguous,

		// Titles/honorifics.
		"dr":   dispositionNeverTerminal,
		"mr":   dispositionNeverTerminal,
		"mrs":  dispositionNeverTerminal,
		"ms":   dispositionNeverTerminal,
		"prof": dispositionNeverTerminal,
		"sr":   dispositionNeverTerminal,
		"jr":   dispositionNeverTerminal,

		// Reference markers.
		"ch":   dispositionNeverTerminal,
		"eq":   dispositionNeverTerminal,
		"fig":  dispositionNeverTerminal,
		"ref":  dispositionNeverTerminal,
		"sec":  dispositionNeverTerminal,
		"vol":  dispositionNeverTerminal,
		"dept": dispositionNeverTerminal,
		"misc": dispositionNeverTerminal,

		// Units/time, frequent in spoken measurements.
		"hr":     dispositionNeverTerminal,
		"hrs":    dispositionNeverTerminal,
		"lb":     dispositionNeverTerminal,
		"lbs":    dispositionNeverTerminal,
		"min":    dispositionNeverTerminal,
		"mins":   dispositionNeverTerminal,
		"oz":     dispositionNeverTerminal,
		"tbsp":   dispositionNeverTerminal,
		"tsp":    dispositionNeverTerminal,
		"approx": dispositionNeverTerminal,
	}

	// boundaryPromoterWords are lowercase words that, appearing right after
	// an ambiguous abbreviation's period, indicate the period really did end
	// a sentence. Deliberately narrow: a broader list turns phrases like
	// "etc. and" or "u.s. and" into false sentence breaks.
	boundaryPromoterWords = map[string]struct{}{
		"finally":   {},
		"however":   {},
		"meanwhile": {},
		"next":      {},
		"then":      {},
		"therefore": {},
	}

	// pronounBoundaryPromoters are lowercase pronouns that usually, but not
	// always, also indicate a sentence boundary: "U.S. I think" ends a
	// sentence, but "go to U.S. I-90" (a locative continuation) does not.
	pronounBoundaryPromoters = map[string]struct{}{
		"he":   {},
		"i":    {},
		"it":   {},
		"she":  {},
		"they": {},
		"we":   {},
		"you":  {},
	}

	locativePrepositionWords = map[string]struct{}{
		"across":     {},
		"around":     {},
		"at":         {},
		"from":       {},
		"in":         {},
		"inside":     {},
		"near":       {},
		"outside":    {},
		"through":    {},
		"throughout": {},
		"to":         {},
		"within":     {},
	}
)

// isSentenceBoundary reports whether the period at idx actually ends a
// sentence, as opposed to being a decimal point, part of an embedded token,
// or trailing a non-terminal abbreviation.
func isSentenceBoundary(runes []rune, idx int) bool {
	atBoundary, _ := classifyPeriod(runes, idx)
	return atBoundary
}

func classifyPeriod(runes []rune, idx int) (bool, boundaryRationale) {
	if idx < 0 || idx >= len(runes) || runes[idx] != '.' {
		return false, rationaleDefault
	}

	if isDecimalPoint(runes, idx) {
		return false, rationaleDecimalPoint
	}
	if isEmbeddedInLargerToken(runes, idx) {
		return false, rationaleEmbeddedInToken
	}

	token := strings.ToLower(tokenBeforePeriod(runes, idx))
	if token == "" {
		return true, rationaleDefault
	}

	if disposition, known := dictationAbbreviations[token]; known {
		if disposition == dispositionNeverTerminal {
			return false, rationaleKnownAbbreviation
		}
		if periodResolvesBoundary(runes, idx, token) {
			return true, rationaleAmbiguousResolved
		}
		return false, rationaleAmbiguousHeld
	}

	if isInitialismToken(token) {
		if periodResolvesBoundary(runes, idx, token) {
			return true, rationaleInitialismResolved
		}
		return false, rationaleInitialism
	}

	return true, rationaleDefault
}

func isDecimalPoint(runes []rune, idx int) bool {
	if idx <= 0 || idx+1 >= len(runes) {
		return false
	}
	return unicode.IsDigit(runes[idx-1]) && unicode.IsDigit(runes[idx+1])
}

func isEmbeddedInLargerToken(runes []rune, idx int) bool {
	if idx+1 >= len(runes) {
		return false
	}
	next := runes[idx+1]
	return unicode.IsLetter(next) || unicode.IsDigit(next) || next == '.'
}

// periodResolvesBoundary decides, for an ambiguous abbreviation or an
// initialism, whether the word following the period settles the question in
// favor of "yes, this period ends the sentence."
func periodResolvesBoundary(runes []rune, idx int, token string) bool {
	nextWordStart := skipToNextWordStart(runes, idx+1)
	if nextWordStart < 0 {
		return true
	}
	if unicode.IsUpper(runes[nextWordStart]) {
		return true
	}

	nextWord := strings.ToLower(letterRunFrom(runes, nextWordStart))
	if _, ok := boundaryPromoterWords[nextWord]; ok {
		return true
	}
	if _, ok := pronounBoundaryPromoters[nextWord]; !ok {
		return false
	}
	if isInitialismToken(token) && looksLikeLocativeContinuation(runes, idx) {
		return false
	}
	return true
}

func letterRunFrom(runes []rune, idx int) string {
	if idx < 0 || idx >= len(runes) {
		return ""
	}
	end := idx
	for end < len(runes) && unicode.IsLetter(runes[end]) {
		end++
	}
	return string(runes[idx:end])
}

func skipToNextWordStart(runes []rune, start int) int {
	for i := start; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			continue
		case isQuoteOrBracketRune(r):
			continue
		case unicode.IsLetter(r):
			return i
		default:
			return -1
		}
	}
	return -1
}

func isKeptLowercase(token string) bool {
	_, ok := neverCapitalized[token]
	return ok
}

// looksLikeLocativeContinuation guards the "go to U.S. I-90" shape: a
// capitalized initialism preceded by a locative preposition (optionally
// through an article, "in the U.S. West") at the start of a sentence isn't
// actually done yet, even though the next token reads like a pronoun.
func looksLikeLocativeContinuation(runes []rune, idx int) bool {
	tokenStart := tokenStartBefore(runes, idx)
	if tokenStart < 0 {
		return false
	}

	prevWord, prevStart := wordBefore(runes, tokenStart)
	if prevWord == "" {
		return false
	}
	if _, ok := locativePrepositionWords[prevWord]; ok {
		return isSentenceLeading(runes, prevStart)
	}

	if !isArticle(prevWord) || prevStart <= 0 {
		return false
	}

	prepWord, prepStart := wordBefore(runes, prevStart)
	if _, ok := locativePrepositionWords[prepWord]; !ok {
		return false
	}
	return isSentenceLeading(runes, prepStart)
}

func tokenStartBefore(runes []rune, idx int) int {
	if idx <= 0 || idx >= len(runes) {
		return -1
	}
	start := idx - 1
	for start >= 0 {
		if r := runes[start]; unicode.IsLetter(r) || r == '.' {
			start--
			continue
		}
		break
	}
	return start + 1
}

func wordBefore(runes []rune, idx int) (string, int) {
	if idx <= 0 || idx > len(runes) {
		return "", -1
	}

	i := idx - 1
	for i >= 0 && !unicode.IsLetter(runes[i]) {
		i--
	}
	if i < 0 {
		return "", -1
	}

	end := i + 1
	for i >= 0 && unicode.IsLetter(runes[i]) {
		i--
	}
	start := i + 1
	return strings.ToLower(string(runes[start:end])), start
}

func isArticle(word string) bool {
	switch word {
	case "a", "an", "the":
		return true
	default:
		return false
	}
}

func isSentenceLeading(runes []rune, wordStart int) bool {
	if wordStart <= 0 {
		return true
	}

	i := wordStart - 1
	for i >= 0 {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i--
			continue
		case isQuoteOrBracketRune(r):
			i--
			continue
		}
		break
	}

	if i < 0 {
		return true
	}
	switch runes[i] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

func tokenBeforePeriod(runes []rune, idx int) string {
	if idx <= 0 || idx >= len(runes) {
		return ""
	}
	start := idx - 1
	for start >= 0 {
		if r := runes[start]; unicode.IsLetter(r) || r == '.' {
			start--
			continue
		}
		break
	}
	return strings.Trim(string(runes[start+1:idx]), ".")
}

// isInitialismToken reports whether token looks like "u.s" or "a.i": single
// letters joined by periods, with the trailing period already stripped.
func isInitialismToken(token string) bool {
	if !strings.ContainsRune(token, '.') {
		return false
	}

	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return false
	}

	for _, part := range parts {
		runes := []rune(part)
		if len(runes) != 1 || !unicode.IsLetter(runes[0]) {
			return false
		}
	}
	return true
}

func isQuoteOrBracketRune(r rune) bool {
	switch r {
	case ')', ']', '}', '\'', '"', '’', '”':
		return true
	default:
		return false
	}
}
