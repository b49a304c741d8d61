package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator for struct and single-value checks.
type Validator struct {
	cli *validator.Validate
}

// FieldError describes one failed rule.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

func (e FieldError) String() string {
	if e.Param != "" {
		return fmt.Sprintf("%s failed %s=%s", e.Field, e.Tag, e.Param)
	}
	return fmt.Sprintf("%s failed %s", e.Field, e.Tag)
}

// Errors is returned when validation fails.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.String())
	}
	return strings.Join(parts, "; ")
}

func New() *Validator {
	return &Validator{cli: validator.New(validator.WithRequiredStructEnabled())}
}

// ValidateStruct validates s against its `validate` tags.
func (v *Validator) ValidateStruct(s any) error {
	return v.format(v.cli.Struct(s), "")
}

// Validate checks a single value against tag. field names the value in errors.
func (v *Validator) Validate(field string, value any, tag string) error {
	return v.format(v.cli.Var(value, tag), field)
}

func (v *Validator) format(err error, field string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.StructField()
		if name == "" {
			name = field
		}
		out = append(out, FieldError{Field: name, Tag: fe.Tag(), Param: fe.Param()})
	}
	return out
}
