package usecase

import (
	"fmt"
	"strings"

	"little-giant/internal/domain"
)

func buildChatMessages(history []domain.HistoryMessage, message string) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildAssistantPrompt()},
	}
	for _, m := range history {
		if cm, ok := historyToPromptMessage(m); ok {
			messages = append(messages, cm)
		}
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: message})
}

func buildAssistantPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You are Little Giant, a browsing assistant running next to the user's browser.",
		"",
		"Behavior Rules:",
		"1) Answer the current user message; earlier turns are context only.",
		"2) Keep answers concise and plain.",
		"3) You cannot see the page unless its content is included in this request.",
		"4) If you do not know, say so.",
	}, "\n")
}

// historyToPromptMessage replays only user and assistant turns with content.
func historyToPromptMessage(m domain.HistoryMessage) (domain.ChatMessage, bool) {
	if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
		return domain.ChatMessage{}, false
	}
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return domain.ChatMessage{}, false
	}
	return domain.ChatMessage{Role: m.Role, Content: content}, true
}

func buildSummaryMessages(o domain.PageOutline, text string) []domain.ChatMessage {
	return []domain.ChatMessage{{Role: domain.RoleUser, Content: buildSummaryPrompt(o, text)}}
}

func buildSummaryPrompt(o domain.PageOutline, text string) string {
	headings := make([]string, 0, len(o.Headings))
	for _, h := range o.Headings {
		headings = append(headings, fmt.Sprintf("%s: %s", h.Level, h.Text))
	}
	links := make([]string, 0, len(o.Links))
	for _, l := range o.Links {
		links = append(links, fmt.Sprintf("- %s (%s)", l.Text, l.Href))
	}
	sections := []string{
		"Summarize the purpose and content of the following webpage.",
		"",
		"Title: " + o.Title,
		"URL: " + o.URL,
		"",
		"Headings:",
		strings.Join(headings, "\n"),
		"",
		"Top Links:",
		strings.Join(links, "\n"),
		"",
		"Other Info:",
		fmt.Sprintf("- Forms: %d", o.FormCount),
		fmt.Sprintf("- Images: %d", o.ImageCount),
	}
	if text = normalizePromptInput(text); text != "" {
		sections = append(sections, "", "Visible Text:", text)
	}
	sections = append(sections, "", "Write a concise and helpful summary.")
	return strings.Join(sections, "\n")
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
