package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dinsos-bot/internal/config"
	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/integrations/openai"
)

var (
	// ErrFlagged is returned when moderation rejects the question.
	ErrFlagged = errors.New("knowledge: question flagged by moderation")
	// ErrOffTopic is returned when the model judges the question out of scope.
	ErrOffTopic = errors.New("knowledge: question out of scope")
)

const defaultMaxQuestion = 1000

type LLMClient interface {
	Chat(ctx context.Context, p openai.Params, messages []domain.ChatMessage) (string, error)
	Moderate(ctx context.Context, input string) (bool, error)
}

// Responder answers a question with the language model.
type Responder struct {
	llm           LLMClient
	params        openai.Params
	moderate      bool
	knowledgeBase string
	programs      []config.Program
	maxQuestion   int
}

func NewResponder(llm LLMClient, cfg *config.Bot) (*Responder, error) {
	if llm == nil {
		return nil, errors.New("knowledge: llm client must not be nil")
	}
	if cfg == nil {
		return nil, errors.New("knowledge: config must not be nil")
	}
	temp := cfg.AI.Temperature
	format := openai.FormatJSONObject
	if cfg.AI.ResponseFormat == config.ResponseFormatJSONSchema {
		format = openai.FormatScopedAnswer
	}
	return &Responder{
		llm: llm,
		params: openai.Params{
			Model:       cfg.AI.Model,
			Temperature: &temp,
			MaxTokens:   cfg.AI.MaxTokens,
			Format:      format,
		},
		moderate:      cfg.AI.Moderation,
		knowledgeBase: cfg.KnowledgeBase,
		programs:      cfg.Programs,
		maxQuestion:   defaultMaxQuestion,
	}, nil
}

// Ask returns the model's answer to question.
func (r *Responder) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("knowledge: empty question")
	}
	if runes := []rune(question); len(runes) > r.maxQuestion {
		question = string(runes[:r.maxQuestion])
	}

	if r.moderate {
		flagged, err := r.llm.Moderate(ctx, question)
		if err != nil {
			return "", fmt.Errorf("knowledge: moderate: %w", err)
		}
		if flagged {
			return "", ErrFlagged
		}
	}

	messages, err := buildPromptMessages(r.knowledgeBase, r.programs, question)
	if err != nil {
		return "", err
	}
	raw, err := r.llm.Chat(ctx, r.params, messages)
	if err != nil {
		return "", fmt.Errorf("knowledge: chat: %w", err)
	}
	decision, err := parseScopedAnswer(raw)
	if err != nil {
		return "", err
	}
	if !decision.InScope {
		return "", ErrOffTopic
	}
	return strings.TrimSpace(decision.Answer), nil
}
