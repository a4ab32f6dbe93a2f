package service

import (
	"strings"

	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
)

// StructuralValidator checks generated items against the record contract.
type StructuralValidator struct {
	threshold float64 // answer text similarity below which a warning is logged
	logger    *zap.Logger
}

// NewStructuralValidator creates a new StructuralValidator.
func NewStructuralValidator(logger *zap.Logger) *StructuralValidator {
	return &StructuralValidator{
		threshold: 0.8,
		logger:    logger,
	}
}

// Validate returns an error wrapping entities.ErrValidationRejected when the
// item breaks the contract. A correctAnswerText that does not resemble the
// correct option is logged but accepted.
func (v *StructuralValidator) Validate(item entities.GeneratedItem) error {
	if err := entities.ValidateItem(item); err != nil {
		return err
	}

	if score := v.AnswerConsistency(item); score < v.threshold {
		v.logger.Warn("correct answer text differs from the correct option",
			zap.String("prompt", item.Preview(50)),
			zap.Float64("similarity", score),
		)
	}

	return nil
}

// IsValid reports whether Validate accepts the item.
func (v *StructuralValidator) IsValid(item entities.GeneratedItem) bool {
	return entities.ValidateItem(item) == nil
}

// AnswerConsistency returns the similarity (0.0 - 1.0) between the item's
// correctAnswerText and the text of its correct option. Items without a
// correct option score 0.
func (v *StructuralValidator) AnswerConsistency(item entities.GeneratedItem) float64 {
	for _, o := range item.Options {
		if o.IsCorrect {
			return similarity(normalize(item.CorrectAnswerText), normalize(o.Text))
		}
	}
	return 0
}

// normalize lowercases, trims and collapses whitespace.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

// similarity calculates the similarity between two strings using Levenshtein distance.
func similarity(s1, s2 string) float64 {
	maxLen := max(len([]rune(s1)), len([]rune(s2)))
	if maxLen == 0 {
		return 1.0
	}

	return 1.0 - float64(levenshteinDistance(s1, s2))/float64(maxLen)
}

// levenshteinDistance calculates the Levenshtein distance between two strings.
func levenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)

	cols := len(r2) + 1

	// Two rows instead of the full matrix.
	prev := make([]int, cols)
	curr := make([]int, cols)

	for j := 0; j < cols; j++ {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i

		for j := 1; j < cols; j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}

			curr[j] = min(
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
				prev[j-1]+cost, // substitution
			)
		}

		prev, curr = curr, prev
	}

	return prev[cols-1]
}
