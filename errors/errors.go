package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Composition errors
	ErrorTypeConfiguration ErrorType = "configuration"

	// Query errors
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeUnsupportedOperator ErrorType = "unsupported_operator"

	// Lookup errors
	ErrorTypeProviderNotFound ErrorType = "provider_not_found"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeConflict         ErrorType = "conflict"

	// System errors
	ErrorTypeDatabase ErrorType = "database"
	ErrorTypeInternal ErrorType = "internal"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Sentinels for errors.Is. AppError.Is compares by type only.
var (
	ErrConfiguration       = New(ErrorTypeConfiguration, "configuration error")
	ErrValidation          = New(ErrorTypeValidation, "validation error")
	ErrUnsupportedOperator = New(ErrorTypeUnsupportedOperator, "unsupported operator")
	ErrProviderNotFound    = New(ErrorTypeProviderNotFound, "provider not found")
	ErrNotFound            = New(ErrorTypeNotFound, "not found")
	ErrConflict            = New(ErrorTypeConflict, "conflict")
	ErrDatabase            = New(ErrorTypeDatabase, "database error")
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType      `json:"type"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	InnerError error          `json:"-"`
	Stack      []string       `json:"-"`
	HTTPStatus int            `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		if e.InnerError != nil {
			return e.Message + ": " + e.InnerError.Error()
		}
		return e.Message
	}
	if e.InnerError != nil {
		return e.InnerError.Error()
	}
	return string(e.Type)
}

// Unwrap returns the inner error
func (e *AppError) Unwrap() error {
	return e.InnerError
}

// WithMessage adds a message to the error
func (e *AppError) WithMessage(msg string) *AppError {
	e.Message = msg
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithHTTPStatus sets the HTTP status code
func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// WithInnerError sets the inner error
func (e *AppError) WithInnerError(err error) *AppError {
	e.InnerError = err
	return e
}

// WithStack captures the call stack
func (e *AppError) WithStack() *AppError {
	e.Stack = captureStack(3)
	return e
}

// Is checks if this error is of a specific type
func (e *AppError) Is(target error) bool {
	if targetApp, ok := target.(*AppError); ok {
		return e.Type == targetApp.Type
	}
	return false
}

// Field returns the offending field recorded on validation errors.
func (e *AppError) Field() string {
	s, _ := e.Details["field"].(string)
	return s
}

// Operator returns the offending condition operator, if any.
func (e *AppError) Operator() string {
	s, _ := e.Details["operator"].(string)
	return s
}

// New creates a new AppError
func New(errType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Code:    string(errType),
	}
}

// FromError converts a standard error to AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return &AppError{
		Type:       ErrorTypeUnknown,
		Code:       string(ErrorTypeUnknown),
		InnerError: err,
	}
}

// WrapWithType wraps an error with a specific type
func WrapWithType(err error, errType ErrorType, message string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		InnerError: err,
		Code:       string(errType),
	}
}

// NewConfiguration reports a plugin composition problem. ids names the
// plugins involved (cycle members, duplicates).
func NewConfiguration(message string, ids ...string) *AppError {
	e := New(ErrorTypeConfiguration, message).WithHTTPStatus(http.StatusInternalServerError)
	if len(ids) > 0 {
		e.WithDetail("plugins", append([]string(nil), ids...))
	}
	return e
}

// NewValidation reports a malformed condition or payload.
func NewValidation(field, operator, message string) *AppError {
	e := New(ErrorTypeValidation, message).WithHTTPStatus(http.StatusBadRequest)
	if field != "" {
		e.WithDetail("field", field)
	}
	if operator != "" {
		e.WithDetail("operator", operator)
	}
	return e
}

// NewRequired reports a missing required field on a model.
func NewRequired(model, field string) *AppError {
	return NewValidation(field, "", fmt.Sprintf("%s.%s is required", model, field)).
		WithDetail("model", model)
}

func NewUnsupportedOperator(adapter, operator string) *AppError {
	return New(ErrorTypeUnsupportedOperator,
		fmt.Sprintf("%s adapter does not support operator %q", adapter, operator)).
		WithDetail("adapter", adapter).
		WithDetail("operator", operator).
		WithHTTPStatus(http.StatusBadRequest)
}

func NewProviderNotFound(providerID, method string) *AppError {
	msg := fmt.Sprintf("provider %q not found", providerID)
	if method != "" {
		msg = fmt.Sprintf("provider %q has no method %q", providerID, method)
	}
	e := New(ErrorTypeProviderNotFound, msg).
		WithDetail("provider", providerID).
		WithHTTPStatus(http.StatusNotFound)
	if method != "" {
		e.WithDetail("method", method)
	}
	return e
}

func NewNotFound(resource string, id any) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id).
		WithHTTPStatus(http.StatusNotFound)
}

func NewConflict(resource string, field string) *AppError {
	return New(ErrorTypeConflict, fmt.Sprintf("%s with this %s already exists", resource, field)).
		WithDetail("resource", resource).
		WithDetail("field", field).
		WithHTTPStatus(http.StatusConflict)
}

// NewDatabase wraps a driver error.
func NewDatabase(err error, op string) *AppError {
	return WrapWithType(err, ErrorTypeDatabase, op).WithHTTPStatus(http.StatusInternalServerError)
}

func NewInternal(message string) *AppError {
	return New(ErrorTypeInternal, message).WithHTTPStatus(http.StatusInternalServerError)
}

func IsConfiguration(err error) bool       { return errors.Is(err, ErrConfiguration) }
func IsValidation(err error) bool          { return errors.Is(err, ErrValidation) }
func IsUnsupportedOperator(err error) bool { return errors.Is(err, ErrUnsupportedOperator) }
func IsProviderNotFound(err error) bool    { return errors.Is(err, ErrProviderNotFound) }
func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool            { return errors.Is(err, ErrConflict) }

// Is and As re-export the standard library helpers so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }

// HTTPStatus returns the status carried by err, or 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// FromPanic converts a recovered panic value into an internal AppError.
func FromPanic(r any) *AppError {
	if r == nil {
		return nil
	}
	var inner error
	switch v := r.(type) {
	case error:
		inner = v
	default:
		inner = fmt.Errorf("%v", v)
	}
	e := WrapWithType(inner, ErrorTypeInternal, "panic recovered").
		WithHTTPStatus(http.StatusInternalServerError)
	e.Stack = captureStack(4)
	return e
}

// captureStack captures the current call stack
func captureStack(skip int) []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return stack
}

// ErrorChain collects multiple errors, used for batch validation.
type ErrorChain struct {
	errors []*AppError
}

func NewErrorChain() *ErrorChain {
	return &ErrorChain{}
}

// Add appends err to the chain; nil is ignored.
func (c *ErrorChain) Add(err *AppError) *ErrorChain {
	if err != nil {
		c.errors = append(c.errors, err)
	}
	return c
}

func (c *ErrorChain) HasErrors() bool {
	return len(c.errors) > 0
}

func (c *ErrorChain) Error() string {
	msgs := make([]string, 0, len(c.errors))
	for _, err := range c.errors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (c *ErrorChain) Errors() []*AppError {
	return c.errors
}

// First returns the first error, or nil.
func (c *ErrorChain) First() *AppError {
	if len(c.errors) == 0 {
		return nil
	}
	return c.errors[0]
}

// Err returns the first error, or nil when the chain is empty.
func (c *ErrorChain) Err() error {
	if first := c.First(); first != nil {
		return first
	}
	return nil
}
