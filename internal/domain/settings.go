package domain

import "strings"

// WordRule rewrites a word in outgoing broadcast text.
// An empty Replacement deletes the word.
type WordRule struct {
	Word        string
	Replacement string
}

// ApplyWordRules applies rules to text in order
func ApplyWordRules(text string, rules []WordRule) string {
	for _, r := range rules {
		if r.Word == "" {
			continue
		}
		text = strings.ReplaceAll(text, r.Word, r.Replacement)
	}
	return text
}
