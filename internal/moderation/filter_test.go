package moderation

import "testing"

func TestFilter_BlockedKeywords(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "two word phrase"})

	tests := []struct {
		name    string
		text    string
		blocked bool
		reason  string
		term    string
	}{
		{"clean text", "hello, how is the homework going?", false, "", ""},
		{"exact word", "badword", true, "blocked_keyword", "badword"},
		{"word in sentence", "that is a badword right there", true, "blocked_keyword", "badword"},
		{"uppercase", "BADWORD", true, "blocked_keyword", "badword"},
		{"trailing punctuation", "badword!!!", true, "blocked_keyword", "badword"},
		{"substring of clean word is fine", "badwording along", false, "", ""},
		{"phrase match", "this is a two word phrase here", true, "blocked_keyword", "two word phrase"},
		{"phrase across punctuation", "two-word-phrase", true, "blocked_keyword", "two word phrase"},
		{"partial phrase is fine", "two word", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Check(tt.text)
			if got.Blocked != tt.blocked {
				t.Fatalf("Check(%q).Blocked = %v, want %v", tt.text, got.Blocked, tt.blocked)
			}
			if got.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.reason)
			}
			if got.Term != tt.term {
				t.Errorf("Term = %q, want %q", got.Term, tt.term)
			}
		})
	}
}

func TestFilter_DefaultBlocklist(t *testing.T) {
	f := NewFilter()
	if got := f.Check("kys"); !got.Blocked {
		t.Error("default blocklist did not block a default term")
	}
	if got := f.Check("can we meet at 5?"); got.Blocked {
		t.Errorf("default blocklist blocked clean text: %+v", got)
	}
}

func TestFilter_SpamPatterns(t *testing.T) {
	f := NewFilterWithTerms(nil)

	tests := []struct {
		name    string
		text    string
		blocked bool
		term    string
	}{
		{"char flood at threshold", "aaaaaaaa", true, "char_flood"},
		{"char flood below threshold", "aaaaaaa", false, ""},
		{"char flood mid-text", "wow loooooooool", true, "char_flood"},
		{"word flood at threshold", "spam spam spam spam", true, "word_flood"},
		{"word flood below threshold", "spam spam spam", false, ""},
		{"word flood case-insensitive", "Buy BUY buy bUy", true, "word_flood"},
		{"repeats not consecutive", "go go stop go go stop go go", false, ""},
		{"ordinary message", "see you at the library tomorrow", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Check(tt.text)
			if got.Blocked != tt.blocked {
				t.Fatalf("Check(%q).Blocked = %v, want %v", tt.text, got.Blocked, tt.blocked)
			}
			if tt.blocked && got.Reason != "spam_pattern" {
				t.Errorf("Reason = %q, want spam_pattern", got.Reason)
			}
			if got.Term != tt.term {
				t.Errorf("Term = %q, want %q", got.Term, tt.term)
			}
		})
	}
}

func TestNewFilterWithTerms_IgnoresBlanks(t *testing.T) {
	f := NewFilterWithTerms([]string{"", "  ", "badword"})
	if got := f.Check("badword"); !got.Blocked {
		t.Error("non-blank term was dropped")
	}
	if got := f.Check("a normal message"); got.Blocked {
		t.Errorf("blank terms leaked into the blocklist: %+v", got)
	}
}
