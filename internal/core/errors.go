package core

import (
	"errors"
	"fmt"
)

// ValidationError reports input rejected before any store call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// PermissionError reports an ownership mismatch. It never carries record content.
type PermissionError struct {
	Kind string
	ID   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied on %s %q", e.Kind, e.ID)
}

// TransientStoreError wraps a store or network failure.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// Transient wraps err unless it is nil or already typed.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsPermission(err) || IsValidation(err) || IsTransient(err) {
		return err
	}
	return &TransientStoreError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsPermission(err error) bool {
	var target *PermissionError
	return errors.As(err, &target)
}

func IsTransient(err error) bool {
	var target *TransientStoreError
	return errors.As(err, &target)
}
