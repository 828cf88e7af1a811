package pipeline

import "strings"

// Keywords matches lowercase substrings that signal intent towards the bot.
type Keywords struct {
	Bot     []string
	Trigger []string
}

func (k Keywords) HasBot(text string) bool {
	return containsAny(text, k.Bot)
}

func (k Keywords) HasTrigger(text string) bool {
	return containsAny(text, k.Trigger)
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
