package errs

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUpload             = errors.New("upload failed")
	ErrStorage            = errors.New("storage failure")
	ErrServiceClosed      = errors.New("service is not accepting new orders")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Type just for murshallig purpose.
// Should only be used immediately before marshalling.
type JSON struct {
	Error string `json:"error"`
}

// Let users know which required field is not provided.
type RequiredFieldError struct {
	FieldName string
}

func (e *RequiredFieldError) Error() string {
	return fmt.Sprintf("%s: field %q is required", ErrValidation, e.FieldName)
}

func (e *RequiredFieldError) Unwrap() error { return ErrValidation }

// Provides details on why a provided field was rejected.
type InvalidFieldError struct {
	FieldName string
	Reason    string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("%s: field %q %s", ErrValidation, e.FieldName, e.Reason)
}

func (e *InvalidFieldError) Unwrap() error { return ErrValidation }
