package schema

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrNotFound is returned when a requested descriptor does not exist
	ErrNotFound = errors.New("metadata not found")
	// ErrValidation marks metadata that failed validation
	ErrValidation = errors.New("metadata validation failed")
	// ErrUnsupported marks a feature the active backend does not support
	ErrUnsupported = errors.New("unsupported feature")
	// ErrInternal marks a violated internal invariant
	ErrInternal = errors.New("internal error")
	// ErrPersistenceAware is returned when a type is registered both as
	// persistence-aware and persistence-capable
	ErrPersistenceAware = errors.New("type is both persistence-aware and persistence-capable")
	// ErrClosed is returned by a repository after Close
	ErrClosed = errors.New("repository is closed")
)

// NotFoundError describes a failed lookup
type NotFoundError struct {
	Kind       string // type, alias, oid, query, sequence
	Name       string
	Candidates []string
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no metadata for %s %q", e.Kind, e.Name)
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " (known: %s)", strings.Join(e.Candidates, ", "))
	}
	return b.String()
}

// Is matches ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError represents a metadata validation error with context
type ValidationError struct {
	Type    string
	Field   string
	Message string
	Hint    string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var b strings.Builder

	if e.Type != "" {
		b.WriteString(e.Type)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// Is matches ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UnsupportedError is raised when the backend lacks a requested feature.
// It is always fatal.
type UnsupportedError struct {
	Type    string
	Feature string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s is not supported", e.Type, e.Feature)
}

// Is matches ErrUnsupported
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

// InternalError indicates a programming error in the caller
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Message
}

// Is matches ErrInternal
func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

func validationErr(meta *ClassMetaData, field, format string, args ...interface{}) *ValidationError {
	e := &ValidationError{Message: fmt.Sprintf(format, args...), Field: field}
	if meta != nil {
		e.Type = meta.DescribedType().Name
	}
	return e
}

// Errors returns the individual causes of a composite resolution error
func Errors(err error) []error {
	return multierr.Errors(err)
}
