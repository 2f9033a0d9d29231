package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"orgrag/internal/vectorstore"
)

func TestAugmentPrompt(t *testing.T) {
	assert.Equal(t, "hello", augmentPrompt("hello", nil))

	got := augmentPrompt("what is x?", []vectorstore.ContextItem{
		{Document: "x is 1", Source: SourceKnowledgeBase},
		{Document: "we talked about x", Source: SourceChatHistory},
	})
	want := "Context 1 (knowledge_base): x is 1\n\n" +
		"Context 2 (chat_history): we talked about x\n\n" +
		"User: what is x?"
	assert.Equal(t, want, got)
}

func TestChatTitle(t *testing.T) {
	assert.Equal(t, "short", chatTitle("  short  ", 50))
	assert.Equal(t, "héllo", chatTitle("héllo wörld", 5))
	assert.Equal(t, "ab", chatTitle("ab cd", 3))
}

func TestParseQA(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		question string
		answer   string
		ok       bool
	}{
		{name: "plain", in: "Question: What is Go?\nAnswer: A language.", question: "What is Go?", answer: "A language.", ok: true},
		{name: "crlf", in: "Question: Q?\r\nAnswer: A.", question: "Q?", answer: "A.", ok: true},
		{name: "no prefix", in: "Why?\nAnswer: Because.", question: "Why?", answer: "Because.", ok: true},
		{name: "no answer marker", in: "Question: Q?", ok: false},
		{name: "blank answer", in: "Question: Q?\nAnswer:   ", question: "Q?", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, a, ok := parseQA(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.question, q)
				assert.Equal(t, tt.answer, a)
			}
		})
	}
}
