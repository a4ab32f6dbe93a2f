package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Judgment is the verifier's assessment of one submitted item.
type Judgment struct {
	ItemIndex    int      `json:"itemIndex"`    // position in the submitted list, 0- or 1-based
	IsValid      bool     `json:"isValid"`      // false only when the verifier rejects the item
	Issues       []string `json:"issues"`       // reasons when invalid
	SuggestedFix *string  `json:"suggestedFix"` // optional correction hint
}

// UnmarshalJSON applies the verifier defaults: a missing isValid means valid
// and a missing itemIndex never matches an item. An itemIndex written as an
// integral float or a numeric string is accepted, and a plain string issues
// field becomes a single issue.
func (j *Judgment) UnmarshalJSON(data []byte) error {
	var raw struct {
		ItemIndex    json.RawMessage `json:"itemIndex"`
		IsValid      *bool           `json:"isValid"`
		Issues       json.RawMessage `json:"issues"`
		SuggestedFix *string         `json:"suggestedFix"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	index, err := parseItemIndex(raw.ItemIndex)
	if err != nil {
		return err
	}
	issues, err := parseIssues(raw.Issues)
	if err != nil {
		return err
	}

	*j = Judgment{
		ItemIndex:    index,
		IsValid:      true,
		Issues:       issues,
		SuggestedFix: raw.SuggestedFix,
	}
	if raw.IsValid != nil {
		j.IsValid = *raw.IsValid
	}

	return nil
}

// ParseJudgments decodes every element of a JSON array independently, like
// ParseRawItems. Elements that do not decode are reported by position.
func ParseJudgments(elements []json.RawMessage) ([]Judgment, []error) {
	judgments := make([]Judgment, 0, len(elements))
	var errs []error

	for i, el := range elements {
		var j Judgment
		if err := json.Unmarshal(el, &j); err != nil {
			errs = append(errs, fmt.Errorf("element %d: %w", i, err))
			continue
		}
		judgments = append(judgments, j)
	}

	return judgments, errs
}

func isNull(data json.RawMessage) bool {
	return len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

func parseItemIndex(data json.RawMessage) (int, error) {
	if isNull(data) {
		return -1, nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("itemIndex %v is not an integer", f)
		}
		return int(f), nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, fmt.Errorf("itemIndex: unsupported value %s", data)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("itemIndex %q: %w", s, err)
	}
	return n, nil
}

func parseIssues(data json.RawMessage) ([]string, error) {
	if isNull(data) {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("issues: unsupported value %s", data)
	}
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	return []string{s}, nil
}
