// Package knowledge answers free-form questions from the FAQ and, failing
// that, from a language model grounded in the configured knowledge base.
package knowledge

import (
	"strings"

	"dinsos-bot/internal/config"
)

// FAQ matches questions against keyword sets in configuration order.
type FAQ struct {
	entries []faqEntry
}

type faqEntry struct {
	keywords []string
	answer   string
}

func NewFAQ(entries []config.FAQEntry) *FAQ {
	f := &FAQ{}
	for _, e := range entries {
		var kws []string
		for _, k := range e.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				kws = append(kws, k)
			}
		}
		if len(kws) == 0 {
			continue
		}
		f.entries = append(f.entries, faqEntry{keywords: kws, answer: e.Answer})
	}
	return f
}

// Lookup returns the answer of the first entry with a keyword contained in
// question.
func (f *FAQ) Lookup(question string) (string, bool) {
	q := strings.ToLower(question)
	for _, e := range f.entries {
		for _, k := range e.keywords {
			if strings.Contains(q, k) {
				return e.answer, true
			}
		}
	}
	return "", false
}

// Topic is one FAQ entry as shown in the FAQ list.
type Topic struct {
	Title  string
	Answer string
}

// Topics returns up to limit entries titled by their first keyword.
func (f *FAQ) Topics(limit int) []Topic {
	n := len(f.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Topic, 0, n)
	for _, e := range f.entries[:n] {
		out = append(out, Topic{Title: e.keywords[0], Answer: e.answer})
	}
	return out
}
