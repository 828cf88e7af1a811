package domain

// ChatMessage is one role/content pair sent to the LLM provider when the
// dispatcher falls back to a free-text answer.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
