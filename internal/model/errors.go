package model

import (
	"errors"
	"fmt"
)

// ErrValidation marks malformed input caught before any store access.
var ErrValidation = errors.New("validation failed")

// Invalid returns an ErrValidation carrying a user-facing message.
func Invalid(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Is(target error) bool { return target == ErrValidation }
