package knowledge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"dinsos-bot/internal/config"
	"dinsos-bot/internal/domain"
)

type scopedAnswer struct {
	InScope bool   `json:"in_scope"`
	Answer  string `json:"answer"`
}

func buildPromptMessages(knowledgeBase string, programs []config.Program, question string) ([]domain.ChatMessage, error) {
	system, err := buildSystemPrompt(knowledgeBase, programs)
	if err != nil {
		return nil, err
	}
	return []domain.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: question},
	}, nil
}

func buildSystemPrompt(knowledgeBase string, programs []config.Program) (string, error) {
	if programs == nil {
		programs = []config.Program{}
	}
	data, err := json.MarshalIndent(programs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("knowledge: marshal programs: %w", err)
	}
	return strings.Join([]string{
		strings.TrimSpace(knowledgeBase),
		"",
		"DATA PROGRAM BANTUAN:",
		string(data),
		"",
		"PENTING - GAYA BICARA:",
		styleRules(),
		"",
		"Jawab dengan ramah dan informatif. Gunakan Bahasa Indonesia.",
		"",
		"FORMAT JAWABAN:",
		outputContract(),
	}, "\n"), nil
}

func styleRules() string {
	return strings.Join([]string{
		"- Bicara seperti staf customer service yang ramah, bukan robot",
		"- Gunakan bahasa sehari-hari (tapi tetap sopan)",
		"- Boleh pakai kata \"kamu\", \"kok\", \"nih\", \"ya\", \"deh\" untuk lebih natural",
		"- Jangan terlalu formal atau kaku",
		"- Jawaban langsung to the point, ga usah bertele-tele",
		"- Akhiri dengan menawarkan bantuan lebih lanjut",
	}, "\n")
}

func outputContract() string {
	return "Return JSON only with keys in_scope (boolean) and answer (string). " +
		"Questions unrelated to social services or this office are out of scope: " +
		"return in_scope=false and answer=\"\". " +
		"Otherwise return in_scope=true and the final reply in answer."
}

func parseScopedAnswer(raw string) (scopedAnswer, error) {
	var out scopedAnswer
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return scopedAnswer{}, fmt.Errorf("knowledge: decode scoped answer: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return scopedAnswer{}, errors.New("knowledge: decode scoped answer: multiple JSON values")
		}
		return scopedAnswer{}, fmt.Errorf("knowledge: decode scoped answer trailing data: %w", err)
	}
	if out.InScope && strings.TrimSpace(out.Answer) == "" {
		return scopedAnswer{}, errors.New("knowledge: scoped answer missing answer for in-scope question")
	}
	return out, nil
}
