package moderation

import (
	"strings"
	"unicode"
)

// spamCheck pairs a detection function with metadata used for reporting.
type spamCheck struct {
	name  string
	match func(string) bool
}

// spamChecks is the ordered list of spam heuristics applied by
// checkSpamPatterns. Order matters: the first match wins.
var spamChecks = []spamCheck{
	{name: "char_flood", match: hasCharFlood},
	{name: "word_flood", match: hasWordFlood},
}

// hasCharFlood returns true if text contains 8 or more consecutive identical
// characters. Go's regexp package (RE2) does not support backreferences, so
// this is a simple linear scan.
func hasCharFlood(text string) bool {
	const threshold = 8

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood returns true if the same word appears 4 or more times
// consecutively (case-insensitive). Words are delimited by whitespace.
func hasWordFlood(text string) bool {
	const threshold = 4

	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}

// checkSpamPatterns runs every spam heuristic against text and returns a
// blocking FilterResult on the first match.
func (f *Filter) checkSpamPatterns(text string) FilterResult {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return FilterResult{Blocked: true, Reason: "spam_pattern", Term: sc.name}
		}
	}
	return FilterResult{}
}
