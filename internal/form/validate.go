package form

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"eventreg/internal/model"
	"eventreg/pkg/validator"
)

// ValidationError is the first rule the form broke. Message is shown to
// the user as is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

const phoneMessage = "Please enter a valid 10-digit phone number"

var fixedMessages = map[string]string{
	"name":      "Name is required",
	"gender":    "Gender is required",
	"rollNo":    "Roll Number is required",
	"contactNo": "Contact Number is required",
}

// Validate checks the fixed fields first, then every schema field in list
// order, stopping at the first failure.
func Validate(ctx context.Context, fixed model.FixedFields, dynamic map[string]string, schema []model.FieldSchema) error {
	if err := validateFixed(ctx, fixed); err != nil {
		return err
	}
	for _, field := range schema {
		if err := validateField(ctx, field, dynamic[field.Name]); err != nil {
			return err
		}
	}
	return nil
}

func validateFixed(ctx context.Context, fixed model.FixedFields) error {
	err := validator.Validate(ctx, fixed)
	if err == nil {
		return nil
	}
	var fe *validator.FieldError
	if !errors.As(err, &fe) {
		return fmt.Errorf("validate fixed fields: %w", err)
	}
	msg := fixedMessages[fe.Field]
	if fe.Tag == "phone" {
		msg = phoneMessage
	}
	if msg == "" {
		msg = fe.Error()
	}
	return &ValidationError{Field: fe.Field, Message: msg, Err: fe}
}

func validateField(ctx context.Context, field model.FieldSchema, value string) error {
	label := field.DisplayLabel()
	if field.Required && strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field.Name, Message: label + " is required"}
	}
	if value == "" {
		return nil
	}
	invalid := func(err error) error {
		return &ValidationError{Field: field.Name, Message: "Invalid " + label, Err: err}
	}

	if field.Validation != "" {
		re, err := regexp.Compile(field.Validation)
		if err != nil {
			return invalid(fmt.Errorf("compile pattern %q: %w", field.Validation, err))
		}
		if !re.MatchString(value) {
			return invalid(nil)
		}
	}

	switch field.Type {
	case model.KindSelect:
		if !slices.Contains(field.Options, value) {
			return invalid(fmt.Errorf("%q is not one of the options", value))
		}
	case model.KindEmail:
		if err := validator.Var(ctx, value, "email"); err != nil {
			return invalid(err)
		}
	case model.KindNumber:
		if err := validator.Var(ctx, value, "numeric"); err != nil {
			return invalid(err)
		}
	case model.KindURL:
		if err := validator.Var(ctx, value, "url"); err != nil {
			return invalid(err)
		}
	case model.KindDate:
		if err := validator.Var(ctx, value, "ymd"); err != nil {
			return invalid(err)
		}
	case model.KindText, model.KindTextarea, model.KindTel:
	}
	return nil
}
