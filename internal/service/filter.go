package service

import (
	"go.uber.org/zap"

	"github.com/aliskhannn/ssm-generator/internal/domain/entities"
)

// Exclusion is an item dropped by the verifier.
type Exclusion struct {
	Position int // index in the filtered list
	Item     entities.GeneratedItem
	Judgment entities.Judgment
}

// Filter drops the items whose judgment is explicitly invalid, logging the
// reported issues. Items without a judgment are kept.
func Filter(items []entities.GeneratedItem, judgments []entities.Judgment, logger *zap.Logger) []entities.GeneratedItem {
	kept, excluded := FilterWithReport(items, judgments)
	for _, ex := range excluded {
		logger.Info("item excluded by verifier",
			zap.Int("position", ex.Position),
			zap.String("prompt", ex.Item.Preview(50)),
			zap.Strings("issues", ex.Judgment.Issues),
		)
	}
	return kept
}

// FilterWithReport is Filter without logging; it also returns what was dropped.
//
// Judgments are matched to items by itemIndex. The model may count from 0 or
// from 1, so the base is inferred from the set: an index 0 means 0-based, an
// index equal to len(items) means 1-based. When neither or both are present,
// item i takes judgment i, then judgment i+1 if no other item claimed it.
// When several judgments share an index the last one wins.
func FilterWithReport(items []entities.GeneratedItem, judgments []entities.Judgment) ([]entities.GeneratedItem, []Exclusion) {
	resolved := resolveJudgments(len(items), judgments)

	kept := make([]entities.GeneratedItem, 0, len(items))
	var excluded []Exclusion

	for i, item := range items {
		j, ok := resolved[i]
		if ok && !j.IsValid {
			excluded = append(excluded, Exclusion{Position: i, Item: item, Judgment: j})
			continue
		}
		kept = append(kept, item)
	}

	return kept, excluded
}

// resolveJudgments maps item positions to judgments.
func resolveJudgments(n int, judgments []entities.Judgment) map[int]entities.Judgment {
	byIndex := make(map[int]entities.Judgment, len(judgments))
	for _, j := range judgments {
		if j.ItemIndex < 0 {
			continue
		}
		byIndex[j.ItemIndex] = j
	}

	resolved := make(map[int]entities.Judgment, n)
	_, zeroBased := byIndex[0]
	_, oneBased := byIndex[n]

	switch {
	case zeroBased && !oneBased:
		for i := 0; i < n; i++ {
			if j, ok := byIndex[i]; ok {
				resolved[i] = j
			}
		}
	case oneBased && !zeroBased:
		for i := 0; i < n; i++ {
			if j, ok := byIndex[i+1]; ok {
				resolved[i] = j
			}
		}
	default:
		claimed := make(map[int]bool, len(byIndex))
		for i := 0; i < n; i++ {
			if j, ok := byIndex[i]; ok {
				resolved[i] = j
				claimed[i] = true
			}
		}
		for i := 0; i < n; i++ {
			if _, ok := resolved[i]; ok || claimed[i+1] {
				continue
			}
			if j, ok := byIndex[i+1]; ok {
				resolved[i] = j
				claimed[i+1] = true
			}
		}
	}

	return resolved
}
