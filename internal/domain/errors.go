package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the validator, the stores, the server and the client.
var (
	ErrValidation           = errors.New("validation failed")
	ErrAuthentication       = errors.New("authentication failed")
	ErrDuplicateID          = errors.New("duplicate transaction id")
	ErrNotFound             = errors.New("transaction not found")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrTransport            = errors.New("transport failure")
	ErrTimeout              = errors.New("timeout")
	ErrUnsafeQuery          = errors.New("unsafe query")
	ErrInternal             = errors.New("internal error")
)

// ConfirmDeleteAll is the token that authorizes a bulk delete.
const ConfirmDeleteAll = "DELETE_ALL"

// FieldErrorKind classifies a single field failure.
type FieldErrorKind string

const (
	MissingRequiredField FieldErrorKind = "MissingRequiredField"
	InvalidFieldType     FieldErrorKind = "InvalidFieldType"
	OutOfRangeValue      FieldErrorKind = "OutOfRangeValue"
)

// FieldError describes one malformed field.
type FieldError struct {
	Field   string         `json:"field"`
	Kind    FieldErrorKind `json:"kind"`
	Message string         `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Field, e.Kind, e.Message)
}

// ValidationError enumerates every malformed field of one input.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Has reports whether any field failed with the given kind.
func (e *ValidationError) Has(kind FieldErrorKind) bool {
	for _, f := range e.Fields {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Field returns the first failure recorded for field, if any.
func (e *ValidationError) Field(field string) (FieldError, bool) {
	for _, f := range e.Fields {
		if f.Field == field {
			return f, true
		}
	}
	return FieldError{}, false
}

// UserMessage renders err for an end user. Validation, confirmation and
// unsafe-query errors are actionable and shown verbatim; transport failures get
// a retry hint; everything else is opaque.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfirmationRequired),
		errors.Is(err, ErrUnsafeQuery),
		errors.Is(err, ErrDuplicateID),
		errors.Is(err, ErrNotFound):
		return err.Error()
	case errors.Is(err, ErrAuthentication):
		return "authentication failed: check FINANZAS_API_KEY"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTransport):
		return "the finance service could not be reached, try again"
	default:
		return "internal error"
	}
}

var errorCodes = []struct {
	code string
	err  error
}{
	{"validation", ErrValidation},
	{"authentication", ErrAuthentication},
	{"duplicate_id", ErrDuplicateID},
	{"not_found", ErrNotFound},
	{"confirmation_required", ErrConfirmationRequired},
	{"unsafe_query", ErrUnsafeQuery},
	{"timeout", ErrTimeout},
	{"timeout", context.DeadlineExceeded},
	{"transport", ErrTransport},
}

// ErrorCode returns the stable wire code for err, or "internal".
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// ErrorFromCode rebuilds a sentinel-wrapping error from a wire code and the
// message that accompanied it. Unknown codes become ErrInternal.
func ErrorFromCode(code, message string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return codedError{sentinel: c.err, message: message}
		}
	}
	return codedError{sentinel: ErrInternal, message: message}
}

type codedError struct {
	sentinel error
	message  string
}

func (e codedError) Error() string {
	if e.message == "" {
		return e.sentinel.Error()
	}
	return e.message
}

func (e codedError) Unwrap() error { return e.sentinel }
