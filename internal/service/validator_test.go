package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
)

func TestStructuralValidator(t *testing.T) {
	v := NewStructuralValidator(zaptest.NewLogger(t))

	tests := []struct {
		name   string
		mutate func(*entities.GeneratedItem)
		valid  bool
	}{
		{name: "well formed", mutate: func(*entities.GeneratedItem) {}, valid: true},
		{name: "four options", mutate: func(it *entities.GeneratedItem) { it.Options = it.Options[:4] }, valid: false},
		{name: "six options", mutate: func(it *entities.GeneratedItem) {
			it.Options = append(it.Options, entities.Option{ID: 6, Text: "Zeta"})
		}, valid: false},
		{name: "no correct option", mutate: func(it *entities.GeneratedItem) { it.Options[1].IsCorrect = false }, valid: false},
		{name: "two correct options", mutate: func(it *entities.GeneratedItem) { it.Options[0].IsCorrect = true }, valid: false},
		{name: "missing subject", mutate: func(it *entities.GeneratedItem) { it.Subject = "" }, valid: false},
		{name: "missing prompt", mutate: func(it *entities.GeneratedItem) { it.Prompt = "" }, valid: false},
		{name: "missing explanation", mutate: func(it *entities.GeneratedItem) { it.Explanation = "" }, valid: false},
		{name: "missing correct answer text", mutate: func(it *entities.GeneratedItem) { it.CorrectAnswerText = "" }, valid: false},
		{name: "answer text mismatch is tolerated", mutate: func(it *entities.GeneratedItem) { it.CorrectAnswerText = "Omega" }, valid: true},
		{name: "missing topic is tolerated", mutate: func(it *entities.GeneratedItem) { it.Topic = "" }, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem("Q?")
			tt.mutate(&item)
			before := item

			err := v.Validate(item)
			assert.Equal(t, tt.valid, err == nil, "err=%v", err)
			assert.Equal(t, tt.valid, v.IsValid(item))
			if !tt.valid {
				assert.True(t, errors.Is(err, entities.ErrValidationRejected))
			}
			assert.Equal(t, before, item)
		})
	}
}

func TestStructuralValidator_AnswerConsistency(t *testing.T) {
	v := NewStructuralValidator(zaptest.NewLogger(t))

	item := validItem("Q?")
	assert.InDelta(t, 1.0, v.AnswerConsistency(item), 0.0001)

	item.CorrectAnswerText = "  beta "
	assert.InDelta(t, 1.0, v.AnswerConsistency(item), 0.0001)

	item.CorrectAnswerText = "Omega"
	assert.Less(t, v.AnswerConsistency(item), 0.8)

	item.Options[1].IsCorrect = false
	assert.Zero(t, v.AnswerConsistency(item))
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("", ""))
	assert.Equal(t, 3, levenshteinDistance("", "abc"))
	assert.Equal(t, 3, levenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 1, levenshteinDistance("aorta", "aortà"))
}
