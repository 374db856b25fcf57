package types

import (
	"errors"
	"fmt"
)

// Error kinds. A RuntimeError unwraps to its kind, so callers can test with errors.Is.
var (
	ErrFragmentDirectoryNotFound = errors.New("fragment directory not found")
	ErrDuplicateMethod           = errors.New("duplicate method")
	ErrRelationDescriptorParse   = errors.New("relation descriptor parse error")
	ErrArtifactNotFound          = errors.New("artifact not found")
	ErrMethodNotFound            = errors.New("method not found")
	ErrMethodExecution           = errors.New("method execution error")
	ErrAdapterConnection         = errors.New("adapter connection error")
	ErrMapperNotFound            = errors.New("mapper not found")
	ErrRecordNotFound            = errors.New("record not found")
)

// RuntimeError describes a failure of one class (and optionally one method) operation
type RuntimeError struct {
	Kind   error
	Class  string
	Method string
	Err    error
}

func (e *RuntimeError) Error() string {
	subject := e.Class
	if e.Method != "" {
		subject = fmt.Sprintf("%s.%s", e.Class, e.Method)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", subject, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", subject, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause
func (e *RuntimeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError creates a RuntimeError for a class-level failure
func NewError(kind error, class string, err error) *RuntimeError {
	return &RuntimeError{Kind: kind, Class: class, Err: err}
}

// NewMethodError creates a RuntimeError for a method-level failure
func NewMethodError(kind error, class, method string, err error) *RuntimeError {
	return &RuntimeError{Kind: kind, Class: class, Method: method, Err: err}
}
