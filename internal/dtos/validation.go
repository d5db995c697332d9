package dtos

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
)

// validate reads the same `binding` tags gin uses, so REST bodies and
// realtime payloads share one rule set.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(JSONFieldName)
	return v
}

// JSONFieldName reports struct fields by their JSON key in validation errors
func JSONFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

// Validate checks v against its binding tags
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return ValidationError(err)
	}
	return nil
}

// ValidationError converts a binding/validator error into a field-error list.
// Errors that are not validator errors (bad JSON, wrong types) get a
// single generic message.
func ValidationError(err error) *apperrors.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Validation("invalid request body")
	}

	fields := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperrors.FieldError{
			Field: fieldPath(fe),
			Error: describe(fe),
		})
	}
	return apperrors.Validation("validation failed", fields...)
}

func fieldPath(fe validator.FieldError) string {
	// Namespace is "Struct.field"; drop the struct name
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	if ns == "" {
		return fe.Field()
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid id"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "url":
		return "must be a valid url"
	default:
		return "is invalid"
	}
}
