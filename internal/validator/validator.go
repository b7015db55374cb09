package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"wa-dashboard/internal/apperrors"
)

var (
	validate *validator.Validate
	once     sync.Once

	phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
)

// Get returns a singleton validator instance.
func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report JSON field names instead of struct field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return phonePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// FieldErrors maps a JSON field name to a user-facing message.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, f[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes FieldErrors match apperrors.ErrValidation.
func (f FieldErrors) Is(target error) bool {
	return target == apperrors.ErrValidation
}

// Validate validates a struct and returns FieldErrors on failure.
func Validate(s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	fields := make(FieldErrors, len(validationErrors))
	for _, e := range validationErrors {
		if _, exists := fields[e.Field()]; exists {
			continue
		}
		fields[e.Field()] = message(e)
	}
	return fields
}

// ValidateVar validates a single variable against tag.
func ValidateVar(field any, tag string) error {
	return Get().Var(field, tag)
}

// Fields extracts field errors from err, or nil when err carries none.
func Fields(err error) FieldErrors {
	var fields FieldErrors
	if errors.As(err, &fields) {
		return fields
	}
	return nil
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url", "http_url":
		return "must be a valid URL"
	case "min":
		return fmt.Sprintf("must be at least %s characters long", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "gt", "gte":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "datetime":
		return fmt.Sprintf("must be a date formatted as %s", e.Param())
	case "phone":
		return "must be a phone number with 8 to 15 digits"
	default:
		return fmt.Sprintf("failed the %q check", e.Tag())
	}
}
