package dto

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	customErrors "github.com/agile-platform/backend/internal/domain/auth/errors"
	"github.com/go-playground/validator/v10"
)

const (
	passwordMinLen  = 8
	passwordMaxLen  = 128
	nameMinLen      = 2
	nameMaxLen      = 50
	passwordSpecial = "@$!%*?&"
)

var namePattern = regexp.MustCompile(`^[\x{4e00}-\x{9fa5}a-zA-Z\s]+$`)

// NewValidator returns a validator that reports fields by their json names and
// knows the strongpwd and personname rules.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("strongpwd", strongPassword)
	_ = v.RegisterValidation("personname", personName)
	return v
}

func strongPassword(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if n := utf8.RuneCountInString(s); n < passwordMinLen || n > passwordMaxLen {
		return false
	}
	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecial, r):
			special = true
		}
	}
	return lower && upper && digit && special
}

func personName(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if n := utf8.RuneCountInString(s); n < nameMinLen || n > nameMaxLen {
		return false
	}
	return namePattern.MatchString(s)
}

// Validate runs v over in and converts failures into a detailed
// invalid-argument error carrying one FieldError per failed field.
func Validate(v *validator.Validate, in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return customErrors.NewInvalidArgument(err.Error())
	}

	details := make([]customErrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, customErrors.FieldError{
			Field:   fe.Field(),
			Message: message(fe),
		})
	}
	return customErrors.WithDetails(customErrors.ErrInvalidArgument, "Validation failed", details...)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "strongpwd":
		return "password must be 8-128 characters and contain upper and lower case letters, a digit and one of " + passwordSpecial
	case "personname":
		return "name must be 2-50 characters of letters and spaces"
	case "eqfield":
		return fe.Field() + " does not match"
	default:
		return fe.Field() + " is invalid"
	}
}
