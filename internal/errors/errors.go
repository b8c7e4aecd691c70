// Package errors defines the transformation error taxonomy and its
// mapping onto transport-visible HTTP failures.
package errors

import (
	"fmt"
	"net/http"
)

// Kind classifies a transformation failure.
type Kind int

const (
	// KindConfig covers construction-time failures: malformed template
	// syntax or an out-of-range extraction subgroup. Never raised at
	// request time for a validated bundle.
	KindConfig Kind = iota
	// KindBodyParse is a request-time JSON body parse failure.
	KindBodyParse
	// KindTemplateSyntax is a request-time template re-parse or render
	// failure.
	KindTemplateSyntax
	// KindPayloadTooLarge is raised when a buffered body exceeds the
	// configured byte limit.
	KindPayloadTooLarge
	// KindTransformationNotFound is raised in functional mode when no
	// transformation resolves for the inferred function.
	KindTransformationNotFound
)

// String returns the metric/log label for the kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindBodyParse:
		return "body_parse"
	case KindTemplateSyntax:
		return "template_syntax"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindTransformationNotFound:
		return "transformation_not_found"
	}
	return "unknown"
}

// StatusCode returns the HTTP status a request-time failure of this
// kind maps to.
func (k Kind) StatusCode() int {
	switch k {
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindBodyParse, KindTemplateSyntax:
		return http.StatusBadRequest
	case KindTransformationNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// TransformError is a classified transformation failure.
type TransformError struct {
	Kind       Kind
	Message    string
	underlying error
}

func (e *TransformError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *TransformError) Unwrap() error {
	return e.underlying
}

// StatusCode returns the HTTP status for the error's kind.
func (e *TransformError) StatusCode() int {
	return e.Kind.StatusCode()
}

// ResponseBody returns the short plain-text body sent to clients.
// Internal detail (template text, parse positions) stays in logs.
func (e *TransformError) ResponseBody() string {
	return e.Message
}

// Configf creates a construction-time configuration error.
func Configf(format string, args ...interface{}) *TransformError {
	return &TransformError{
		Kind:    KindConfig,
		Message: fmt.Sprintf(format, args...),
	}
}

// BodyParse wraps a JSON body parse failure.
func BodyParse(err error) *TransformError {
	return &TransformError{
		Kind:       KindBodyParse,
		Message:    "bad request",
		underlying: err,
	}
}

// TemplateSyntax wraps a template parse or render failure.
func TemplateSyntax(err error) *TransformError {
	return &TransformError{
		Kind:       KindTemplateSyntax,
		Message:    "bad request",
		underlying: err,
	}
}

// PayloadTooLarge reports a buffered body exceeding limit bytes.
func PayloadTooLarge(limit int64) *TransformError {
	return &TransformError{
		Kind:       KindPayloadTooLarge,
		Message:    "payload too large",
		underlying: fmt.Errorf("body exceeds buffer limit of %d bytes", limit),
	}
}

// TransformationNotFound reports an unresolvable function mapping.
func TransformationNotFound(function string) *TransformError {
	return &TransformError{
		Kind:       KindTransformationNotFound,
		Message:    "transformation for function not found",
		underlying: fmt.Errorf("no transformation mapped for function %q", function),
	}
}

// AsTransformError extracts a TransformError from err, if any.
func AsTransformError(err error) (*TransformError, bool) {
	if te, ok := err.(*TransformError); ok {
		return te, true
	}
	return nil, false
}
