package exercise

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an exercise, or a corpus entity it
	// references, does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by Create when an equivalent exercise exists.
	ErrConflict = errors.New("exercise already exists")
	// ErrInvalid matches every *ValidationError through errors.Is.
	ErrInvalid = errors.New("invalid exercise")
)

// ValidationError reports the first validation rule an exercise broke.
// Msg is shown to authors unchanged.
type ValidationError struct {
	Rule string
	Msg  string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

func invalid(rule, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Msg: fmt.Sprintf(format, args...)}
}
