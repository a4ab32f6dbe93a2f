package entities

import (
	"encoding/json"
	"fmt"
)

// OptionsPerItem is the number of answer options every exam item carries.
const OptionsPerItem = 5

// Option is a single answer choice of a GeneratedItem.
type Option struct {
	ID        int    `json:"id"`        // position label shown to the candidate (1-5)
	Text      string `json:"text"`      // answer text
	IsCorrect bool   `json:"isCorrect"` // true for the single correct option
}

// GeneratedItem is one multiple-choice exam question produced by the model.
// Field order matches the record store layout.
type GeneratedItem struct {
	Subject           string   `json:"subject" validate:"required"`           // topical category, e.g. "Cardiologia"
	Topic             string   `json:"topic"`                                  // narrower subtopic, defaults to Subject
	Prompt            string   `json:"prompt" validate:"required"`            // question text
	HasImage          bool     `json:"hasImage"`                               // whether the question refers to an image
	ImageRef          *string  `json:"imageRef"`                               // image location, null when absent
	Options           []Option `json:"options" validate:"required,len=5"`     // exactly OptionsPerItem choices
	CorrectAnswerText string   `json:"correctAnswerText" validate:"required"` // text of the correct option
	Explanation       string   `json:"explanation" validate:"required"`       // rationale for the correct option
}

// WithDefaults returns a copy of the item with absent optional fields backfilled.
// Content fields are never changed.
func (it GeneratedItem) WithDefaults() GeneratedItem {
	if it.Topic == "" {
		it.Topic = it.Subject
	}
	if it.Options != nil {
		it.Options = append([]Option(nil), it.Options...)
	}
	return it
}

// CorrectOptions returns how many options are flagged as correct.
func (it GeneratedItem) CorrectOptions() int {
	n := 0
	for _, o := range it.Options {
		if o.IsCorrect {
			n++
		}
	}
	return n
}

// Preview returns the first n runes of the prompt, for log lines.
func (it GeneratedItem) Preview(n int) string {
	r := []rune(it.Prompt)
	if len(r) <= n {
		return it.Prompt
	}
	return string(r[:n]) + "..."
}

// RawItem is the loosely typed shape decoded from a model response.
// Every field is optional; NewGeneratedItem decides what is acceptable.
type RawItem struct {
	Subject           *string     `json:"subject"`
	Topic             *string     `json:"topic"`
	Prompt            *string     `json:"prompt"`
	HasImage          *bool       `json:"hasImage"`
	ImageRef          *string     `json:"imageRef"`
	Options           []RawOption `json:"options"`
	CorrectAnswerText *string     `json:"correctAnswerText"`
	Explanation       *string     `json:"explanation"`
}

// RawOption is the loosely typed shape of a single option.
type RawOption struct {
	ID        *int    `json:"id"`
	Text      *string `json:"text"`
	IsCorrect *bool   `json:"isCorrect"`
}

// ParseRawItems decodes every element of a JSON array independently, so a
// single malformed element does not discard its siblings. Elements that do
// not decode are reported in the returned error slice by position.
func ParseRawItems(elements []json.RawMessage) ([]RawItem, []error) {
	items := make([]RawItem, 0, len(elements))
	var errs []error

	for i, el := range elements {
		var raw RawItem
		if err := json.Unmarshal(el, &raw); err != nil {
			errs = append(errs, fmt.Errorf("element %d: %w", i, err))
			continue
		}
		items = append(items, raw)
	}

	return items, errs
}

// NewGeneratedItem maps a raw decoded item into a typed GeneratedItem and
// enforces the structural contract. Absent required fields, a wrong option
// count or anything other than exactly one correct option yield an error
// wrapping ErrValidationRejected.
func NewGeneratedItem(raw RawItem) (GeneratedItem, error) {
	item := GeneratedItem{
		Subject:           deref(raw.Subject),
		Topic:             deref(raw.Topic),
		Prompt:            deref(raw.Prompt),
		ImageRef:          raw.ImageRef,
		CorrectAnswerText: deref(raw.CorrectAnswerText),
		Explanation:       deref(raw.Explanation),
	}
	if raw.HasImage != nil {
		item.HasImage = *raw.HasImage
	}

	if raw.Options != nil {
		item.Options = make([]Option, 0, len(raw.Options))
		for i, ro := range raw.Options {
			opt := Option{ID: i + 1, Text: deref(ro.Text)}
			if ro.ID != nil {
				opt.ID = *ro.ID
			}
			if ro.IsCorrect != nil {
				opt.IsCorrect = *ro.IsCorrect
			}
			item.Options = append(item.Options, opt)
		}
	}

	if err := ValidateItem(item); err != nil {
		return GeneratedItem{}, err
	}

	return item, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
