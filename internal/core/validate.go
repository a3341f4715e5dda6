package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks normalized fields. The returned error is a *ValidationError.
func (f ExpenseFields) Validate() error {
	f = f.Normalize()
	if err := f.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Reason: "must be a number greater than zero"}
	}
	if err := validate.Struct(f); err != nil {
		return fromValidator(err)
	}
	if f.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	return nil
}

// Validate checks the fields p sets, with the same rules as ExpenseFields.
// An empty patch is rejected.
func (p ExpensePatch) Validate() error {
	if p.IsEmpty() {
		return &ValidationError{Reason: "nothing to update"}
	}
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return &ValidationError{Field: "amount", Reason: "must be a number greater than zero"}
		}
	}
	checks := []struct {
		field string
		value *string
		tag   string
	}{
		{"title", p.Title, "required,max=200"},
		{"category", p.Category, "required,max=100"},
		{"description", p.Description, "max=1000"},
	}
	for _, c := range checks {
		if c.value == nil {
			continue
		}
		if err := validate.Var(strings.TrimSpace(*c.value), c.tag); err != nil {
			return fieldError(c.field, err)
		}
	}
	if p.Type != nil && !p.Type.IsValid() {
		return &ValidationError{Field: "type", Reason: "must be one of personal, group"}
	}
	if p.Date != nil && p.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	return nil
}

// Validate checks the fields a sign-up or admin command supplies.
func (u User) Validate() error {
	if err := validate.Var(u.Email, "required,email,max=254"); err != nil {
		return &ValidationError{Field: "email", Reason: "must be a valid email address"}
	}
	if strings.TrimSpace(u.DisplayName) == "" {
		return &ValidationError{Field: "displayName", Reason: "is required"}
	}
	return nil
}

// ValidEmail reports whether s is a syntactically valid address.
func ValidEmail(s string) bool {
	return validate.Var(s, "required,email,max=254") == nil
}

func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	return &ValidationError{Field: fe.Field(), Reason: reasonFor(fe)}
}

// fieldError names field explicitly; validator.Var errors carry no field name.
func fieldError(field string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: field, Reason: err.Error()}
	}
	return &ValidationError{Field: field, Reason: reasonFor(verrs[0])}
}

func reasonFor(fe validator.FieldError) string {
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "max":
		reason = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		reason = "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		reason = "failed " + fe.Tag() + " check"
	}
	return reason
}
