// Package moderation screens outgoing chat messages before they are
// persisted and fanned out: a keyword blocklist plus flood heuristics that
// catch keyboard mashing and copy-paste spam in group rooms.
package moderation

import (
	"strings"
	"unicode"
)

// FilterResult is the outcome of checking one message.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string // the matched keyword or pattern name
}

// Filter holds the keyword blocklist. Single words are matched per token so
// substrings of clean words never trigger; multi-word phrases are matched as
// substrings of the normalized text.
type Filter struct {
	words   map[string]bool
	phrases []string
}

// defaultTerms is a minimal starter blocklist. Deployments extend it via
// NewFilterWithTerms.
var defaultTerms = []string{
	"kill yourself",
	"kys",
}

// NewFilter creates a Filter with the default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms creates a Filter with a custom blocklist. Terms
// containing spaces are matched as phrases; everything else as whole words.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]bool)}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.ContainsRune(term, ' ') {
			f.phrases = append(f.phrases, term)
		} else {
			f.words[term] = true
		}
	}
	return f
}

// Check runs the blocklist and spam checks against text. The first match
// wins; a zero-value result means the message is clean.
func (f *Filter) Check(text string) FilterResult {
	normalized := normalize(text)

	for _, word := range strings.Fields(normalized) {
		if f.words[word] {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: word}
		}
	}
	for _, phrase := range f.phrases {
		if strings.Contains(normalized, phrase) {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: phrase}
		}
	}

	return f.checkSpamPatterns(text)
}

// normalize lowercases the text and strips punctuation so "BadWord!" matches
// a "badword" blocklist entry.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}
