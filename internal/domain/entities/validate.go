package entities

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidationRejected is returned when an item violates the structural contract.
var ErrValidationRejected = errors.New("item rejected by structural validation")

// tagOneCorrect is reported when the number of correct options is not exactly one.
const tagOneCorrect = "onecorrect"

var itemValidator = newItemValidator()

func newItemValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so messages match the record layout.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		item := sl.Current().Interface().(GeneratedItem)
		if item.CorrectOptions() != 1 {
			sl.ReportError(item.Options, "options", "Options", tagOneCorrect, "")
		}
	}, GeneratedItem{})

	return v
}

// ValidateItem enforces the structural contract of a GeneratedItem:
// subject, prompt, options, correctAnswerText and explanation must be
// present, options must hold exactly OptionsPerItem entries and exactly one
// of them must be correct. It does not compare correctAnswerText with the
// text of the correct option.
func ValidateItem(item GeneratedItem) error {
	err := itemValidator.Struct(item)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrValidationRejected, err)
	}

	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		reasons = append(reasons, describeFieldError(fe))
	}

	return fmt.Errorf("%w: %s", ErrValidationRejected, strings.Join(reasons, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is missing"
	case "len":
		return fmt.Sprintf("%s must have exactly %s entries", fe.Field(), fe.Param())
	case tagOneCorrect:
		return fe.Field() + " must have exactly one correct entry"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
