// Package transcript assembles and normalizes recognized ASR segments.
package transcript

import "strings"

// Options controls transcript assembly formatting behavior.
type Options struct {
	TrailingSpace       bool
	CapitalizeSentences bool
	RemoveFillerWords   bool
}

// Assemble joins final ASR segments and applies the configured normalization
// passes in order: whitespace collapse, optional filler removal, optional
// sentence casing, optional trailing space.
func Assemble(finalSegments []string, opts Options) string {
	text := collapseWhitespace(strings.Join(finalSegments, " "))
	if text == "" {
		return ""
	}

	if opts.RemoveFillerWords {
		if text = collapseWhitespace(removeFillerWords(text)); text == "" {
			return ""
		}
	}

	if opts.CapitalizeSentences {
		text = applySentenceCasing(text)
	}

	if opts.TrailingSpace {
		text += " "
	}
	return text
}

// collapseWhitespace squeezes runs of whitespace (including newlines ASR
// segments sometimes carry) into single spaces and trims the ends.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// applySentenceCasing capitalizes sentence starts, then restores the pronoun
// "I" in contractions and standalone positions, which lowercase ASR output
// otherwise leaves as "i".
func applySentenceCasing(text string) string {
	text = capitalizeSentenceStarts(text)
	text = pronounIContractionPattern.ReplaceAllStringFunc(text, func(match string) string {
		return "I" + match[1:]
	})
	return capitalizeStandalonePronounI(text)
}
