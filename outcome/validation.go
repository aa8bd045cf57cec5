package outcome

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Months after the session in which an effective date is still accepted.
const (
	sustainableEmploymentWindowMonths = 13
	careerProgressionWindowMonths     = 12
)

// Resource is the field set the business rules read. Both *Outcome and
// *OutcomePatch satisfy it; nil means the field was not supplied.
type Resource interface {
	ClaimedDate() *time.Time
	EffectiveDate() *time.Time
	Type() *OutcomeType
	PriorityGroup() *ClaimedPriorityGroup
	ModifiedDate() *time.Time
}

// FieldError is a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors wraps a non-empty failure list so it can travel as an error.
type ValidationErrors struct {
	Fields []FieldError
}

func (e *ValidationErrors) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "outcome: validation failed: " + strings.Join(parts, "; ")
}

// Validator applies the struct tag constraints and the outcome business rules.
type Validator struct {
	structs *validator.Validate
	now     func() time.Time
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Validator{structs: v, now: time.Now}
}

func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate returns every failure found on r; an empty result means valid.
//
// sessionCreatedAt is only needed for the effective date window of
// SustainableEmployment and CareerProgression outcomes. Callers that have no
// session pass nil and the window rule is skipped.
func (v *Validator) Validate(r Resource, sessionCreatedAt *time.Time) []FieldError {
	errs := v.structural(r)
	now := v.now()

	claimed := r.ClaimedDate()
	effective := r.EffectiveDate()

	if claimed != nil {
		if claimed.After(now) {
			errs = append(errs, FieldError{"OutcomeClaimedDate", "OutcomeClaimedDate must be less than or equal to the current date/time"})
		}
		if effective != nil && claimed.Before(*effective) {
			errs = append(errs, FieldError{"OutcomeClaimedDate", "OutcomeClaimedDate must be greater than or equal to OutcomeEffectiveDate"})
		}
		if r.PriorityGroup() == nil && !hasField(errs, "ClaimedPriorityGroup") {
			errs = append(errs, FieldError{"ClaimedPriorityGroup", "ClaimedPriorityGroup is required when OutcomeClaimedDate is supplied"})
		}
		if effective == nil && !hasField(errs, "OutcomeEffectiveDate") {
			errs = append(errs, FieldError{"OutcomeEffectiveDate", "OutcomeEffectiveDate is required when OutcomeClaimedDate is supplied"})
		}
	}

	if effective != nil {
		if effective.After(now) {
			errs = append(errs, FieldError{"OutcomeEffectiveDate", "OutcomeEffectiveDate must be less than or equal to the current date/time"})
		}
		if t := r.Type(); t != nil && sessionCreatedAt != nil {
			if msg, ok := effectiveWindow(*t, *effective, *sessionCreatedAt); !ok {
				errs = append(errs, FieldError{"OutcomeEffectiveDate", msg})
			}
		}
	}

	if modified := r.ModifiedDate(); modified != nil && modified.After(now) {
		errs = append(errs, FieldError{"LastModifiedDate", "LastModifiedDate must be less than or equal to the current date/time"})
	}

	if t := r.Type(); t != nil && !t.Valid() {
		errs = append(errs, FieldError{"OutcomeType", "Please supply a valid OutcomeType"})
	}

	if g := r.PriorityGroup(); g != nil && !g.Valid() {
		errs = append(errs, FieldError{"ClaimedPriorityGroup", "Please supply a valid ClaimedPriorityGroup"})
	}

	return errs
}

func effectiveWindow(t OutcomeType, effective, session time.Time) (string, bool) {
	var months int
	switch t {
	case OutcomeTypeSustainableEmployment:
		months = sustainableEmploymentWindowMonths
	case OutcomeTypeCareerProgression:
		months = careerProgressionWindowMonths
	default:
		return "", true
	}
	if effective.Before(session) || effective.After(session.AddDate(0, months, 0)) {
		return fmt.Sprintf("OutcomeEffectiveDate must be within %d months of the session date for %s outcomes", months, t), false
	}
	return "", true
}

func (v *Validator) structural(r Resource) []FieldError {
	err := v.structs.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: tagMessage(fe)})
	}
	return out
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", fe.Field(), fe.Param())
	case "numeric":
		return fe.Field() + " must be numeric"
	case "uuid":
		return fe.Field() + " must be a valid identifier"
	default:
		return fe.Field() + " is invalid"
	}
}

func hasField(errs []FieldError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}
