package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"payops/internal/domain"
)

// ValidationError reports malformed input. Field is empty for request-level
// problems such as an empty batch.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// EligibilityError rejects a payment for a contractor that may not be paid.
type EligibilityError struct {
	ContractorID    string
	Name            string
	CheckrStatus    domain.CheckrStatus
	PaymentEligible bool
}

func (e EligibilityError) Error() string {
	if e.CheckrStatus != domain.CheckrClear {
		return fmt.Sprintf("cannot create payment for %s: checkr status is %s", e.Name, e.CheckrStatus)
	}
	return fmt.Sprintf("cannot create payment for %s: not payment eligible", e.Name)
}

// ConflictError means persisted state moved under the caller. The caller
// should reload and retry.
type ConflictError struct {
	Message  string
	EntityID string
}

func (e ConflictError) Error() string {
	return e.Message
}

// validationFailure converts validator output into a ValidationError naming
// the first offending field.
func validationFailure(prefix string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ValidationError{Field: prefix, Message: err.Error()}
	}
	fe := verrs[0]
	field := fe.Field()
	if prefix != "" {
		field = prefix + "." + field
	}
	return ValidationError{Field: field, Message: describeTag(fe)}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " item(s)"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "unique":
		return "must not contain duplicates"
	case "datetime":
		return "must be a date in " + fe.Param() + " form"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "email":
		return "must be an email address"
	case "iso3166_1_alpha2":
		return "must be an ISO 3166 alpha-2 country code"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
