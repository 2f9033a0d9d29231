package app

import (
	"fmt"
	"strings"

	"orgrag/internal/ai"
	"orgrag/internal/model"
	"orgrag/internal/vectorstore"
)

const DefaultSystemPrompt = "You are an intelligent assistant. Use the provided context to answer concisely and accurately."

const qaPromptTemplate = "Given the following context, generate one concise Question and its Answer.\n\n" +
	"Context:\n%s\n\nFormat:\nQuestion: <question>\nAnswer: <answer>\n"

// augmentPrompt prefixes the user prompt with the retrieved documents. With
// no context the prompt is returned unchanged.
func augmentPrompt(prompt string, items []vectorstore.ContextItem) string {
	if len(items) == 0 {
		return prompt
	}
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "Context %d (%s): %s\n\n", i+1, item.Source, item.Document)
	}
	b.WriteString("User: ")
	b.WriteString(prompt)
	return b.String()
}

func promptMessages(systemPrompt, userContent string) []ai.ChatMessage {
	return []ai.ChatMessage{
		{Role: model.MessageRoleSystem, Content: systemPrompt},
		{Role: model.MessageRoleUser, Content: userContent},
	}
}

// chatTitle is the first n runes of the prompt.
func chatTitle(prompt string, n int) string {
	runes := []rune(strings.TrimSpace(prompt))
	if len(runes) > n {
		runes = runes[:n]
	}
	return strings.TrimSpace(string(runes))
}

// parseQA splits "Question: ...\nAnswer: ..." output. ok is false when either
// half is blank.
func parseQA(text string) (question, answer string, ok bool) {
	qPart, aPart, found := strings.Cut(strings.ReplaceAll(text, "\r\n", "\n"), "\nAnswer:")
	if !found {
		return "", "", false
	}
	question = strings.TrimSpace(qPart)
	if len(question) >= len("Question:") && strings.EqualFold(question[:len("Question:")], "Question:") {
		question = strings.TrimSpace(question[len("Question:"):])
	}
	answer = strings.TrimSpace(aPart)
	return question, answer, question != "" && answer != ""
}
