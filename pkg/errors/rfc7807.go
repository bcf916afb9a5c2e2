// Package errors provides the payout error taxonomy and its RFC 7807 Problem Details rendering
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Standard error functions
var (
	Is = errors.Is
	As = errors.As
)

// FieldError represents a validation error for a specific field
type FieldError struct {
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

func (f *FieldError) Error() string {
	return fmt.Sprintf("%s (%s): %s", f.Field, f.Kind, f.Message)
}

func NewFieldError(kind, field, reason string) FieldError {
	return FieldError{Kind: kind, Field: field, Message: reason}
}

// Kinds of the payout error taxonomy. Each value is a template: use
// Explain, Wrap or WithPayload to derive a concrete error, and errors.Is
// against the template to classify one.
var (
	Validation        = Status(http.StatusBadRequest).Reason("ValidationError")
	NotFound          = Status(http.StatusNotFound).Reason("NotFoundError")
	DuplicatePayment  = Status(http.StatusConflict).Reason("DuplicatePaymentError")
	InvalidTransition = Status(http.StatusConflict).Reason("InvalidTransitionError")
	GatewaySubmission = Status(http.StatusBadGateway).Reason("GatewaySubmissionError")
	GatewayTimeout    = Status(http.StatusGatewayTimeout).Reason("GatewayTimeoutError")
	Gateway           = Status(http.StatusBadGateway).Reason("GatewayError")
	Parse             = Status(http.StatusBadGateway).Reason("ParseError")
	LedgerPosting     = Status(http.StatusBadGateway).Reason("LedgerPostingError")
	Unauthorized      = Status(http.StatusUnauthorized).Reason("UnauthorizedError")
	Busy              = Status(http.StatusConflict).Reason("BusyError")
	Internal          = Status(http.StatusInternalServerError).Reason("InternalError")
)

// Error is a custom error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind string `json:"kind"`
	// Message is the human readable string that indicate the error
	Message string `json:"message"`
	// Fields used when there's validation error for a field.
	Fields []FieldError `json:"fields,omitempty"`
	// Payload carries an upstream error body verbatim.
	Payload any `json:"payload,omitempty"`

	status int
	cause  error
}

var _ error = (*Error)(nil)

// Status returns an error template carrying the given HTTP status
func Status(code int) *Error {
	return &Error{Kind: http.StatusText(code), status: code}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] ", e.Kind)
	if e.Message != "" {
		str += e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

// Reason returns a copy of the error with kind set to given value
func (e *Error) Reason(kind string) *Error {
	err := *e
	err.Kind = kind
	return &err
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Wrap returns a copy of the error with the cause set
func (e *Error) Wrap(cause error) *Error {
	err := *e
	err.cause = cause
	return &err
}

// Explain makes a copy of the error with given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

// WithPayload makes a copy of the error carrying an upstream body
func (e *Error) WithPayload(payload any) *Error {
	err := *e
	err.Payload = payload
	return &err
}

// WithField returns a copy of error with a field error appended.
func (e *Error) WithField(kind, field, message string) *Error {
	newError := *e
	newError.Fields = append(append([]FieldError(nil), e.Fields...), NewFieldError(kind, field, message))
	return &newError
}

// StatusCode returns the HTTP status associated with the kind
func (e *Error) StatusCode() int {
	if e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

// Is implements the needed interface for errors.Is
// It checks kind for equality
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	return false
}

// HTTPStatus resolves the HTTP status for any error
func HTTPStatus(err error) int {
	var e *Error
	if As(err, &e) {
		return e.StatusCode()
	}
	if Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// Problem type URIs
const (
	problemBase = "https://api.instapay.local/problems/"
)

// ValidationError represents a validation error for RFC 7807
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	Errors   []ValidationError      `json:"errors,omitempty"`
	Extra    map[string]interface{} `json:"-"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return p.Detail
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// WithValidationErrors adds validation errors to the problem details
func (p *ProblemDetails) WithValidationErrors(errors []ValidationError) *ProblemDetails {
	p.Errors = errors
	return p
}

// WithExtra adds extra fields to the problem details (they will be serialized at the top level)
func (p *ProblemDetails) WithExtra(key string, value interface{}) *ProblemDetails {
	if p.Extra == nil {
		p.Extra = make(map[string]interface{})
	}
	p.Extra[key] = value
	return p
}

// MarshalJSON implements custom JSON marshaling to include extra fields at the top level
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{})
	result["type"] = p.Type
	result["title"] = p.Title
	result["status"] = p.Status
	if p.Detail != "" {
		result["detail"] = p.Detail
	}
	if p.Instance != "" {
		result["instance"] = p.Instance
	}
	if p.TraceID != "" {
		result["trace_id"] = p.TraceID
	}
	if len(p.Errors) > 0 {
		result["errors"] = p.Errors
	}

	// Add extra fields at the top level
	for k, v := range p.Extra {
		result[k] = v
	}

	return json.Marshal(result)
}

// ToProblemDetails renders the error for an HTTP response. The success
// flag keeps the envelope compatible with existing payout clients.
func (e *Error) ToProblemDetails(instance string) *ProblemDetails {
	detail := e.Message
	if detail == "" {
		detail = http.StatusText(e.StatusCode())
	}
	p := &ProblemDetails{
		Type:     problemBase + e.Kind,
		Title:    e.Kind,
		Status:   e.StatusCode(),
		Detail:   detail,
		Instance: instance,
	}
	for _, f := range e.Fields {
		p.Errors = append(p.Errors, ValidationError{Field: f.Field, Message: f.Message, Code: f.Kind})
	}
	if e.Payload != nil {
		p.WithExtra("error", e.Payload)
	}
	return p.WithExtra("success", false)
}

// NewProblem converts any error into problem details
func NewProblem(err error, instance string) *ProblemDetails {
	var e *Error
	if As(err, &e) {
		return e.ToProblemDetails(instance)
	}
	if Is(err, context.DeadlineExceeded) {
		return GatewayTimeout.Explain("upstream call timed out").ToProblemDetails(instance)
	}
	return Internal.Explain("%s", err.Error()).ToProblemDetails(instance)
}

// NewValidationError creates a validation error problem
func NewValidationError(detail, instance string) *ProblemDetails {
	return Validation.Explain("%s", detail).ToProblemDetails(instance)
}

// NewUnauthorizedError creates an unauthorized error problem
func NewUnauthorizedError(detail, instance string) *ProblemDetails {
	return Unauthorized.Explain("%s", detail).ToProblemDetails(instance)
}

// NewNotFoundError creates a not found error problem
func NewNotFoundError(detail, instance string) *ProblemDetails {
	return NotFound.Explain("%s", detail).ToProblemDetails(instance)
}
