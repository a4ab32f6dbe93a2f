package service

import (
	"context"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/infra/llm"
)

// Completer sends one chat exchange to the completion endpoint.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// CompleterFactory builds a Completer bound to one credential.
type CompleterFactory func(apiKey string) Completer

// ReferenceExtractor reads grounding text from a document.
type ReferenceExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ItemWriter validates and stores generated items. Write expects items
// already returned by Accept.
type ItemWriter interface {
	Accept(items []entities.GeneratedItem) []entities.GeneratedItem
	Write(ctx context.Context, accepted []entities.GeneratedItem, path string, mode entities.WriteMode) (int, error)
}

// RunNotifier announces finished runs.
type RunNotifier interface {
	NotifyRunCompleted(ctx context.Context, subject, topic string, summary entities.RunSummary) error
}
