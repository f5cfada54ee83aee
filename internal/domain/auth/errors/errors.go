package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInternal           = errors.New("internal error")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrSamePassword       = errors.New("same password")
)

// FieldError points a client at the input field that caused a failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// DetailedError carries a client-facing message and per-field details on top
// of one of the sentinel kinds above.
type DetailedError struct {
	kind    error
	msg     string
	details []FieldError
}

func (e *DetailedError) Error() string {
	return e.msg
}

func (e *DetailedError) Unwrap() error {
	return e.kind
}

func WithDetails(kind error, msg string, details ...FieldError) error {
	return &DetailedError{kind: kind, msg: msg, details: details}
}

// Details returns the field details attached to err, if any.
func Details(err error) []FieldError {
	var de *DetailedError
	if errors.As(err, &de) {
		return de.details
	}
	return nil
}

// Message returns the client-facing message of a DetailedError or fallback.
func Message(err error, fallback string) string {
	var de *DetailedError
	if errors.As(err, &de) {
		return de.msg
	}
	return fallback
}

func NewInvalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

func WrapInternal(err error, context string) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, context, err)
}

func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}

func IsInvalidPassword(err error) bool {
	return errors.Is(err, ErrInvalidPassword)
}

func IsSamePassword(err error) bool {
	return errors.Is(err, ErrSamePassword)
}
