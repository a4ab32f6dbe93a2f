package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/infra/llm"
	"github.com/aliskhannn/ssm-generator/internal/prompts"
)

type reply struct {
	text string
	err  error
}

// scriptedCompleter answers generation and verification calls from separate queues.
type scriptedCompleter struct {
	mu       sync.Mutex
	generate []reply
	verify   []reply
	calls    [][]llm.Message
	block    chan struct{} // when set, Complete waits on it or on ctx
}

func (c *scriptedCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, messages)

	queue := &c.generate
	if len(messages) > 0 && messages[0].Content == prompts.VerificationSystem {
		queue = &c.verify
	}
	if len(*queue) == 0 {
		return "", errors.New("unexpected call")
	}
	r := (*queue)[0]
	*queue = (*queue)[1:]
	return r.text, r.err
}

func (c *scriptedCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *scriptedCompleter) verificationCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.calls {
		if m[0].Content == prompts.VerificationSystem {
			n++
		}
	}
	return n
}

func itemJSON(subject, prompt string) string {
	return fmt.Sprintf(`{
  "subject": %q,
  "topic": "Generale",
  "prompt": %q,
  "hasImage": false,
  "imageRef": null,
  "options": [
    {"id": 1, "text": "Alfa", "isCorrect": false},
    {"id": 2, "text": "Beta", "isCorrect": true},
    {"id": 3, "text": "Gamma", "isCorrect": false},
    {"id": 4, "text": "Delta", "isCorrect": false},
    {"id": 5, "text": "Epsilon", "isCorrect": false}
  ],
  "correctAnswerText": "Beta",
  "explanation": "Perché sì."
}`, subject, prompt)
}

func itemsArray(subject string, from, n int) string {
	parts := make([]string, 0, n)
	for i := from; i < from+n; i++ {
		parts = append(parts, itemJSON(subject, fmt.Sprintf("Domanda %d?", i)))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func validItem(prompt string) entities.GeneratedItem {
	return entities.GeneratedItem{
		Subject: "Cardiologia",
		Topic:   "Aritmie",
		Prompt:  prompt,
		Options: []entities.Option{
			{ID: 1, Text: "Alfa"},
			{ID: 2, Text: "Beta", IsCorrect: true},
			{ID: 3, Text: "Gamma"},
			{ID: 4, Text: "Delta"},
			{ID: 5, Text: "Epsilon"},
		},
		CorrectAnswerText: "Beta",
		Explanation:       "Perché sì.",
	}
}

// memoryWriter is an ItemWriter that validates and keeps items in memory.
type memoryWriter struct {
	validator *StructuralValidator
	written   []entities.GeneratedItem
	paths     []string
	err       error
}

func (w *memoryWriter) Accept(items []entities.GeneratedItem) []entities.GeneratedItem {
	out := make([]entities.GeneratedItem, 0, len(items))
	for _, it := range items {
		it = it.WithDefaults()
		if w.validator.IsValid(it) {
			out = append(out, it)
		}
	}
	return out
}

func (w *memoryWriter) Write(_ context.Context, accepted []entities.GeneratedItem, path string, _ entities.WriteMode) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.written = append(w.written, accepted...)
	w.paths = append(w.paths, path)
	return len(accepted), nil
}

type stubExtractor struct {
	text string
	err  error
}

func (e stubExtractor) Extract(context.Context, string) (string, error) { return e.text, e.err }
