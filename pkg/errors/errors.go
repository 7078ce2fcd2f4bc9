package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeParsing    Code = "PARSING_ERROR"
	CodeProfile    Code = "PROFILE_NOT_SUPPORTED"
	CodeNetwork    Code = "NETWORK_ERROR"
	CodeIntegrity  Code = "INTEGRITY_ERROR"
	CodeCancelled  Code = "CANCELLED"
	CodeRepository Code = "REPOSITORY_ERROR"
	CodeDependency Code = "DEPENDENCY_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// Metadata describes how a code behaves inside the validation flow.
type Metadata struct {
	// Fatal codes terminate validation; non-fatal ones degrade to a
	// best-effort outcome at the point they occur.
	Fatal         bool
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Fatal:         true,
		Retryable:     false,
		PublicMessage: "validation failed",
	},
	CodeParsing: {
		Fatal:         true,
		Retryable:     false,
		PublicMessage: "document could not be parsed",
	},
	CodeProfile: {
		Fatal:         true,
		Retryable:     false,
		PublicMessage: "encryption profile not supported",
	},
	CodeNetwork: {
		Fatal:         false,
		Retryable:     true,
		PublicMessage: "server could not be reached",
	},
	CodeIntegrity: {
		Fatal:         true,
		Retryable:     false,
		PublicMessage: "license integrity check failed",
	},
	CodeCancelled: {
		Fatal:         false,
		Retryable:     true,
		PublicMessage: "operation cancelled",
	},
	CodeRepository: {
		Fatal:         false,
		Retryable:     true,
		PublicMessage: "local persistence failed",
	},
	CodeDependency: {
		Fatal:         true,
		Retryable:     true,
		PublicMessage: "dependency unavailable",
	},
	CodeInternal: {
		Fatal:         true,
		Retryable:     true,
		PublicMessage: "internal error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf extracts the code from any error, defaulting to CodeInternal for
// untyped errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}
