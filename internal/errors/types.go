package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeResolution  ErrorType = "resolution"
	ErrorTypeTransport   ErrorType = "transport"
	ErrorTypeProtocol    ErrorType = "protocol"
	ErrorTypeApplication ErrorType = "application"
	ErrorTypeSupervision ErrorType = "supervision"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeInternal    ErrorType = "internal"
)

// ViewError is a structured error type with context.
type ViewError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Stack       string
	Recoverable bool
}

// Error implements the error interface.
func (e *ViewError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ViewError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *ViewError) Is(target error) bool {
	var t *ViewError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ViewError) WithContext(key string, value interface{}) *ViewError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *ViewError) WithComponent(component string) *ViewError {
	e.Component = component

	return e
}

// WithStack attaches a backend-supplied stack trace.
func (e *ViewError) WithStack(stack string) *ViewError {
	e.Stack = stack

	return e
}

// Common error codes.
const (
	ErrCodeComponentNotFound = "ERR_COMPONENT_NOT_FOUND"
	ErrCodeConnection        = "ERR_CONNECTION"
	ErrCodeTimeout           = "ERR_TIMEOUT"
	ErrCodeBrokenConnection  = "ERR_BROKEN_CONNECTION"
	ErrCodeBadStatus         = "ERR_BAD_STATUS"
	ErrCodeMalformedBody     = "ERR_MALFORMED_BODY"
	ErrCodeLengthMismatch    = "ERR_LENGTH_MISMATCH"
	ErrCodeRenderFailed      = "ERR_RENDER_FAILED"
	ErrCodeRuntimeNotFound   = "ERR_RUNTIME_NOT_FOUND"
	ErrCodeScriptNotFound    = "ERR_SCRIPT_NOT_FOUND"
	ErrCodeSpawnFailed       = "ERR_SPAWN_FAILED"
	ErrCodeHealthTimeout     = "ERR_HEALTH_TIMEOUT"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeValidationFailed  = "ERR_VALIDATION_FAILED"
	ErrCodeInternalError     = "ERR_INTERNAL"
)

// Error creation functions

// NewResolutionError creates an error for a component name with no file match.
func NewResolutionError(component string) *ViewError {
	return &ViewError{
		Type:        ErrorTypeResolution,
		Code:        ErrCodeComponentNotFound,
		Message:     "component not found: " + component,
		Component:   component,
		Recoverable: true,
	}
}

// NewTransportError creates a transport error. Connection refusals, timeouts
// and broken pipes all land here.
func NewTransportError(code, message string, cause error) *ViewError {
	return &ViewError{
		Type:        ErrorTypeTransport,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewProtocolError creates a protocol error.
func NewProtocolError(code, message string, cause error) *ViewError {
	return &ViewError{
		Type:        ErrorTypeProtocol,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewApplicationError creates an error carrying a message reported by the backend.
func NewApplicationError(message string) *ViewError {
	return &ViewError{
		Type:        ErrorTypeApplication,
		Code:        ErrCodeRenderFailed,
		Message:     message,
		Recoverable: true,
	}
}

// NewSupervisionError creates a backend supervision error.
func NewSupervisionError(code, message string, cause error) *ViewError {
	return &ViewError{
		Type:        ErrorTypeSupervision,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *ViewError {
	return &ViewError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *ViewError {
	return &ViewError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *ViewError {
	return &ViewError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

func isType(err error, t ErrorType) bool {
	var ve *ViewError
	if errors.As(err, &ve) {
		return ve.Type == t
	}

	return false
}

// IsResolution checks if an error is a resolution error.
func IsResolution(err error) bool { return isType(err, ErrorTypeResolution) }

// IsTransport checks if an error is a transport error.
func IsTransport(err error) bool { return isType(err, ErrorTypeTransport) }

// IsProtocol checks if an error is a protocol error.
func IsProtocol(err error) bool { return isType(err, ErrorTypeProtocol) }

// IsApplication checks if an error was reported by the backend.
func IsApplication(err error) bool { return isType(err, ErrorTypeApplication) }

// IsSupervision checks if an error is a supervision error.
func IsSupervision(err error) bool { return isType(err, ErrorTypeSupervision) }

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var ve *ViewError
	if errors.As(err, &ve) {
		return ve.Recoverable
	}

	return false
}

// HasErrorCode reports whether any ViewError in the chain carries code.
func HasErrorCode(err error, code string) bool {
	for err != nil {
		var ve *ViewError
		if !errors.As(err, &ve) {
			return false
		}
		if ve.Code == code {
			return true
		}
		err = ve.Cause
	}

	return false
}
