package interpret

import (
	"errors"
	"fmt"
)

// ErrUnknownCategory matches any *UnknownCategoryError via errors.Is.
var ErrUnknownCategory = errors.New("unknown report category")

// ConversionError reports a value that a primitive parser could not convert.
// The field-group interpreter absorbs it into a status flag; callers of
// Interpret never see it.
type ConversionError struct {
	Kind  string
	Value any
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot interpret %#v as %s: %v", e.Value, e.Kind, e.Err)
	}
	return fmt.Sprintf("cannot interpret %#v as %s", e.Value, e.Kind)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// UnknownCategoryError is returned when a caller names a report category
// outside the three the portal publishes.
type UnknownCategoryError struct {
	Category string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("%s is not a recognized report category", e.Category)
}

func (e *UnknownCategoryError) Is(target error) bool {
	return target == ErrUnknownCategory
}
