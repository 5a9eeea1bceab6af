package generate

import (
	"strings"
	"unicode/utf8"
)

// maxCandidateChars is the hard ceiling above which a candidate is discarded
// as rambling regardless of content.
const maxCandidateChars = 500

var adLikePhrases = []string{
	"introducing", "launching soon", "big announcement",
	"sign up now", "subscribe", "download now", "limited time",
	"game-changer", "revolutionary", "ultimate guide",
}

var bannedPhrases = []string{
	"the key is", "the real x is y", "i'm convinced",
	"in my experience", "here's the thing", "hot take:",
}

// isAdLike reports whether text reads like promotional copy. Empty and
// over-long candidates count as ad-like so they are rejected by the same
// gate.
func isAdLike(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return true
	}
	if utf8.RuneCountInString(text) > maxCandidateChars {
		return true
	}
	for _, p := range adLikePhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// hasBannedPhrases reports whether text contains generic filler phrasing.
func hasBannedPhrases(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, p := range bannedPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// hasArrowFormat reports whether text uses the arrow-bullet structure.
func hasArrowFormat(text string) bool {
	return strings.Contains(text, "→") || strings.Contains(text, "->")
}

// passesGates is the combined quality check for a candidate.
func passesGates(text string) bool {
	return !isAdLike(text) && !hasBannedPhrases(text) && hasArrowFormat(text)
}
