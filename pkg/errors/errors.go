package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for the response writer and for callers that
// branch on the kind of error rather than its text.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	// CodeInsufficientStock marks a requested quantity above the last known inventory.
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	// CodePersistence marks a failed read/write of shopper-local state. Callers
	// log it; it never reaches a response.
	CodePersistence Code = "PERSISTENCE_ERROR"
)

// CodeExternalService is the catalog/auth/shipping/payment failure class.
const CodeExternalService = CodeDependency

// Metadata is how a code is rendered over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable   = true
	final       = false
	withDetails = true
	noDetails   = false
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:        {http.StatusBadRequest, final, "validation failed", withDetails},
	CodeUnauthorized:      {http.StatusUnauthorized, final, "authentication required", noDetails},
	CodeForbidden:         {http.StatusForbidden, final, "access denied", noDetails},
	CodeNotFound:          {http.StatusNotFound, final, "resource not found", noDetails},
	CodeConflict:          {http.StatusConflict, final, "conflict detected", noDetails},
	CodeStateConflict:     {http.StatusUnprocessableEntity, final, "state transition disallowed", withDetails},
	CodeIdempotency:       {http.StatusConflict, final, "idempotency key reused", withDetails},
	CodeRateLimit:         {http.StatusTooManyRequests, final, "rate limit exceeded", noDetails},
	CodeInternal:          {http.StatusInternalServerError, retryable, "internal server error", noDetails},
	CodeDependency:        {http.StatusServiceUnavailable, retryable, "dependency unavailable", withDetails},
	CodeInsufficientStock: {http.StatusConflict, final, "not enough stock", withDetails},
	CodePersistence:       {http.StatusInternalServerError, retryable, "internal server error", noDetails},
}

// MetadataFor falls back to the internal error rendering for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error with an optional cause and public details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	e := New(code, message)
	e.cause = err
	return e
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

// WithDetails sets the payload rendered under error.details when the code
// allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost coded error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether a client may retry the same request.
func IsRetryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.code).Retryable
}
