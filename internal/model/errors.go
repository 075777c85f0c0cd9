package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies core failures so the transport can map them to status codes.
type ErrorKind string

const (
	ConfigurationErrorKind ErrorKind = "configuration"
	ProvisioningErrorKind  ErrorKind = "provisioning"
	SecureComputeErrorKind ErrorKind = "secure_compute"
	ValidationErrorKind    ErrorKind = "validation"
)

// Error is the typed error returned by the orchestration core.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Kind)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewConfigurationError(op, message string) *Error {
	return &Error{Kind: ConfigurationErrorKind, Op: op, Message: message}
}

func NewProvisioningError(op, message string, cause error) *Error {
	return &Error{Kind: ProvisioningErrorKind, Op: op, Message: message, Cause: cause}
}

func NewSecureComputeError(op, message string, cause error) *Error {
	return &Error{Kind: SecureComputeErrorKind, Op: op, Message: message, Cause: cause}
}

func NewValidationError(op, message string) *Error {
	return &Error{Kind: ValidationErrorKind, Op: op, Message: message}
}

// IsKind reports whether any error in err's chain is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
