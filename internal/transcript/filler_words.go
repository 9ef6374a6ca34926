package transcript

import "regexp"

// fillerWordPattern matches standalone verbal fillers an ASR pass transcribes
// literally (optionally doubled, as in "um um", and optionally followed by
// the comma a disfluency often gets punctuated with). It never matches
// inside a larger word, so "humor" and "uhura" are untouched.
var fillerWordPattern = regexp.MustCompile(`(?i)\b(?:u+h+m*|u+m+h*|erm+|hm+)\b,?\s*`)

// removeFillerWords strips standalone disfluency fillers (um, uh, erm, hmm,
// and their stutter variants) from text and collapses the whitespace left
// behind. It runs before sentence casing so a filler at a clause start
// doesn't leave a stray capital behind.
func removeFillerWords(text string) string {
	return fillerWordPattern.ReplaceAllString(text, "")
}
