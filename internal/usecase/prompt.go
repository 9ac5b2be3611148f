package usecase

import (
	"fmt"
	"strings"

	"english-tutor/internal/domain"
)

// DefaultChatPrompt is the tutor persona used by /chat and by the realtime
// session configuration.
const DefaultChatPrompt = "You are a helpful English conversation tutor. Speak naturally and help the user practice English. Always respond in English."

// DefaultTranslationPrompt is the /translate system prompt.
var DefaultTranslationPrompt = strings.Join([]string{
	"You are a professional English-to-Japanese translator.",
	"Translate the user's English text into natural, conversational Japanese.",
	"Return only the translation without quotes, notes, or romanization.",
}, "\n")

// DefaultExplanationPrompt is the /explanation system prompt. The model must
// answer with a JSON object the client decodes into domain.Explanation.
var DefaultExplanationPrompt = strings.Join([]string{
	"You are an English teacher for Japanese learners.",
	"Explain the English used in the tutor's reply so a Japanese speaker can learn from it.",
	"",
	"Output Contract:",
	`Return JSON only with keys "english" (string), "japanese" (string) and optionally "grammar" (string).`,
	`"english": the most useful English phrase or sentence from the tutor's reply.`,
	`"japanese": an explanation of its meaning and nuance, written in Japanese.`,
	`"grammar": a short grammar note in Japanese, or omit the key when nothing is worth noting.`,
}, "\n")

func withSystemPrompt(prompt string, messages []domain.ChatMessage) []domain.ChatMessage {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return messages
	}
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			return messages
		}
	}
	out := make([]domain.ChatMessage, 0, len(messages)+1)
	out = append(out, domain.ChatMessage{Role: domain.RoleSystem, Content: prompt})
	return append(out, messages...)
}

func buildChatMessages(prompt string, in ChatInput) []domain.ChatMessage {
	if len(in.Messages) > 0 {
		return withSystemPrompt(prompt, in.Messages)
	}
	return withSystemPrompt(prompt, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: strings.TrimSpace(in.UserMessage)},
	})
}

func buildTranslationMessages(prompt, text string) []domain.ChatMessage {
	return withSystemPrompt(prompt, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: strings.TrimSpace(text)},
	})
}

func buildExplanationMessages(prompt, userText, aiText string) []domain.ChatMessage {
	return withSystemPrompt(prompt, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: explanationTurn(userText, aiText)},
	})
}

func explanationTurn(userText, aiText string) string {
	return fmt.Sprintf(
		"Learner said:\n%q\n\nTutor replied:\n%q\n\nExplain the tutor's reply following the output contract.",
		normalizePromptInput(userText),
		normalizePromptInput(aiText),
	)
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
