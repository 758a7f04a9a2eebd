package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/controller"

	"github.com/go-playground/validator/v10"
)

// RequestValidator plugs go-playground/validator into echo's Context.Validate.
type RequestValidator struct {
	validate *validator.Validate
}

func New() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validate: v}
}

func (rv *RequestValidator) Validate(i any) error {
	return rv.validate.Struct(i)
}

// Details converts a validation failure into per-field messages for the
// error response body. Other errors yield nil.
func Details(err error) []controller.ValidationError {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	out := make([]controller.ValidationError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, controller.NewValidationError(fe.Field(), messageForTag(fe)))
	}
	return out
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	case "uuid", "uuid4":
		return "Must be a valid UUID"
	case "url":
		return "Must be a valid URL"
	case "gtefield":
		return fmt.Sprintf("Must not be before %s", fe.Param())
	default:
		return fmt.Sprintf("Invalid value (validation: %s)", fe.Tag())
	}
}
