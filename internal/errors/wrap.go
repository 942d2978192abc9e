/**
 * Error wrapping utilities
 *
 * Author: box-fixer team
 */

package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewSimple creates a plain error without the structured Error type.
func NewSimple(message string) error {
	return errors.New(message)
}

// Errorf creates a formatted plain error.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// As is a re-export of errors.As so callers don't need both packages.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is a re-export of errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
