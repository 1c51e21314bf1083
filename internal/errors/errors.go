package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCode is a machine-readable error classification.
type ErrCode string

const (
	ErrCodeSystemError      ErrCode = "system_error"
	ErrCodeValidation       ErrCode = "validation_error"
	ErrCodeInvalidOperation ErrCode = "invalid_operation"
	ErrCodePermissionDenied ErrCode = "permission_denied"
	ErrCodeHTTPClient       ErrCode = "http_client_error"

	// Pipeline-specific taxonomy, see spec §7.
	ErrCodeRequestInvalid  ErrCode = "request_invalid"
	ErrCodeIndexTransient  ErrCode = "index_transient"
	ErrCodeIndexMalformed  ErrCode = "index_malformed"
	ErrCodeAuthTransient   ErrCode = "auth_transient"
	ErrCodeAuthTimeout     ErrCode = "auth_timeout"
	ErrCodeCancelled       ErrCode = "cancelled"
)

var errCodeMap = map[ErrCode]string{
	ErrCodeSystemError:      "system_error",
	ErrCodeValidation:       "validation_error",
	ErrCodeInvalidOperation: "invalid_operation",
	ErrCodePermissionDenied: "permission_denied",
	ErrCodeHTTPClient:       "http_client_error",
	ErrCodeRequestInvalid:   "request_invalid",
	ErrCodeIndexTransient:   "index_transient",
	ErrCodeIndexMalformed:   "index_malformed",
	ErrCodeAuthTransient:    "auth_transient",
	ErrCodeAuthTimeout:      "auth_timeout",
	ErrCodeCancelled:        "cancelled",
}

// Common sentinels usable with errors.Is.
var (
	ErrSystem           = New(ErrCodeSystemError, "internal error")
	ErrValidation       = New(ErrCodeValidation, "validation error")
	ErrInvalidOperation = New(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied = New(ErrCodePermissionDenied, "permission denied")
	ErrHTTPClient       = New(ErrCodeHTTPClient, "http client error")
	ErrRequestInvalid   = New(ErrCodeRequestInvalid, "request invalid")
	ErrIndexTransient   = New(ErrCodeIndexTransient, "index transient error")
	ErrIndexMalformed   = New(ErrCodeIndexMalformed, "index rejected query")
	ErrAuthTransient    = New(ErrCodeAuthTransient, "authorization call failed")
	ErrAuthTimeout      = New(ErrCodeAuthTimeout, "authorization call timed out")
	ErrCancelled        = New(ErrCodeCancelled, "cancelled")
)

func (e ErrCode) String() string {
	if d, ok := errCodeMap[e]; ok {
		return d
	}
	return ""
}

func (e ErrCode) IsEmpty() bool {
	_, ok := errCodeMap[e]
	return !ok
}

// InternalError is the builder-style error used throughout this codebase:
//
//	ierr.NewError("batch authorization failed").
//		WithHint("the authorizer will be retried on the next batch").
//		WithReportableDetails(map[string]interface{}{"batch_index": n}).
//		Mark(ierr.ErrAuthTransient)
type InternalError struct {
	Code    ErrCode
	Message string
	Hint    string
	Details map[string]interface{}
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error { return e.Err }

// Is implements error matching for wrapped errors, comparing by code so
// errors.Is(err, ierr.ErrAuthTimeout) works regardless of message/details.
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}
	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}
	return e.Code == t.Code
}

// NewError starts a builder chain for a fresh error classified as
// system_error; call Mark to reclassify it.
func NewError(message string) *InternalError {
	return &InternalError{Message: message, Code: ErrCodeSystemError}
}

// WithError starts a builder chain wrapping an existing error.
func WithError(err error) *InternalError {
	if err == nil {
		return nil
	}
	if ie, ok := err.(*InternalError); ok {
		return ie
	}
	return &InternalError{Message: err.Error(), Err: err, Code: ErrCodeSystemError}
}

// New creates a classified InternalError directly (used for package-level sentinels).
func New(code ErrCode, message string) *InternalError {
	return &InternalError{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message in one call.
func Wrap(err error, code ErrCode, message string) *InternalError {
	if err == nil {
		return nil
	}
	return &InternalError{Code: code, Message: message, Err: err}
}

// WithHint attaches a human-readable remediation hint.
func (e *InternalError) WithHint(hint string) *InternalError {
	if e == nil {
		return nil
	}
	e.Hint = hint
	return e
}

// WithReportableDetails attaches structured diagnostic context.
func (e *InternalError) WithReportableDetails(details map[string]interface{}) *InternalError {
	if e == nil {
		return nil
	}
	e.Details = details
	return e
}

// Mark finalizes the error's classification code.
func (e *InternalError) Mark(sentinel *InternalError) *InternalError {
	if e == nil {
		return nil
	}
	if sentinel != nil {
		e.Code = sentinel.Code
	}
	return e
}

func ErrorCode(err error) ErrCode {
	if err == nil {
		return ""
	}
	if e, ok := err.(*InternalError); ok {
		if !e.Code.IsEmpty() {
			return e.Code
		}
		if e.Err != nil {
			return ErrorCode(e.Err)
		}
	}
	return ErrCodeSystemError
}

func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*InternalError); ok {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return ErrorMessage(e.Err)
		}
	}
	return "an internal error has occurred"
}

func Is(err error, target error) bool { return errors.Is(err, target) }

func IsValidation(err error) bool       { return errors.Is(err, ErrValidation) }
func IsInvalidOperation(err error) bool { return errors.Is(err, ErrInvalidOperation) }
func IsPermissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }
func IsHTTPClient(err error) bool       { return errors.Is(err, ErrHTTPClient) }
func IsRequestInvalid(err error) bool   { return errors.Is(err, ErrRequestInvalid) }
func IsIndexTransient(err error) bool   { return errors.Is(err, ErrIndexTransient) }
func IsIndexMalformed(err error) bool   { return errors.Is(err, ErrIndexMalformed) }
func IsAuthTransient(err error) bool    { return errors.Is(err, ErrAuthTransient) }
func IsAuthTimeout(err error) bool      { return errors.Is(err, ErrAuthTimeout) }
func IsCancelled(err error) bool        { return errors.Is(err, ErrCancelled) }

// GetHTTPStatusCode returns the HTTP status code the boundary should
// translate an error to, for the errors that are ever surfaced to callers.
func GetHTTPStatusCode(errCode ErrCode) int {
	switch errCode {
	case ErrCodeRequestInvalid, ErrCodeIndexMalformed, ErrCodeValidation, ErrCodeInvalidOperation:
		return http.StatusBadRequest
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeHTTPClient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
