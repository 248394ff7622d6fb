package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents timeouts and non-200 responses
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents HTML or payload parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeRateLimit represents rate limiting by an upstream
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypePersistence represents cache, store or audit write failures
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypePublisher represents channel publish failures
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeValidation represents invalid input records
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeResolution represents affiliate link resolution failures
	ErrorTypeResolution ErrorType = "resolution"
	// ErrorTypePanic represents a recovered panic
	ErrorTypePanic ErrorType = "panic"
)

// PipelineError is an error raised by one pipeline component
type PipelineError struct {
	Type      ErrorType
	Component string
	Message   string
	Err       error
	Time      time.Time
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *PipelineError) IsRetryable() bool {
	return e.Type == ErrorTypeNetwork
}

// New creates a new PipelineError
func New(errType ErrorType, component, message string, err error) *PipelineError {
	return &PipelineError{
		Type:      errType,
		Component: component,
		Message:   message,
		Err:       err,
		Time:      time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(component, message string, err error) *PipelineError {
	return New(ErrorTypeNetwork, component, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(component, message string, err error) *PipelineError {
	return New(ErrorTypeParsing, component, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(component string, duration time.Duration) *PipelineError {
	return New(ErrorTypeRateLimit, component, fmt.Sprintf("rate limited for %v", duration), nil)
}

// NewPersistence creates a new persistence error
func NewPersistence(component, message string, err error) *PipelineError {
	return New(ErrorTypePersistence, component, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(component, message string, err error) *PipelineError {
	return New(ErrorTypePublisher, component, message, err)
}

// NewValidation creates a new validation error
func NewValidation(component, message string) *PipelineError {
	return New(ErrorTypeValidation, component, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *PipelineError {
	return New(ErrorTypeConfiguration, "config", message, err)
}

// NewPanic wraps a recovered panic value
func NewPanic(component string, v interface{}) *PipelineError {
	return New(ErrorTypePanic, component, fmt.Sprintf("recovered: %v", v), nil)
}

// NewResolution creates a new resolution error
func NewResolution(component, message string, err error) *PipelineError {
	return New(ErrorTypeResolution, component, message, err)
}

// IsType reports whether any error in err's chain is a PipelineError of the given type
func IsType(err error, errType ErrorType) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Type == errType
	}
	return false
}
