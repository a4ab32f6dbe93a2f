package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
	"github.com/aliskhannn/ssm-generator/internal/infra/llm"
	"github.com/aliskhannn/ssm-generator/internal/prompts"
)

// ErrVerificationUnavailable is returned when the verification pass cannot produce judgments.
var ErrVerificationUnavailable = errors.New("verification unavailable")

// Verifier asks the model for a second opinion on generated items.
type Verifier struct {
	completer Completer
	logger    *zap.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(completer Completer, logger *zap.Logger) *Verifier {
	return &Verifier{completer: completer, logger: logger}
}

// Verify submits all items in one call and returns the decoded judgments.
// An empty input returns no judgments without calling the endpoint.
func (v *Verifier) Verify(ctx context.Context, items []entities.GeneratedItem) ([]entities.Judgment, error) {
	if len(items) == 0 {
		return nil, nil
	}

	payload, err := indentItems(items)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerificationUnavailable, err)
	}

	v.logger.Info("verifying items", zap.Int("items", len(items)))

	text, err := v.completer.Complete(ctx, []llm.Message{
		llm.SystemMessage(prompts.VerificationSystem),
		llm.UserMessage(prompts.Verification(payload)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerificationUnavailable, err)
	}

	elements, err := llm.DecodeArray(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerificationUnavailable, err)
	}

	judgments, decodeErrs := entities.ParseJudgments(elements)
	for _, derr := range decodeErrs {
		v.logger.Warn("skipping undecodable judgment", zap.Error(derr))
	}

	return judgments, nil
}

func indentItems(items []entities.GeneratedItem) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
