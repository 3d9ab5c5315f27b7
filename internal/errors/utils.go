package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating a ViewError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *ViewError {
	if err == nil {
		return nil
	}

	var ve *ViewError
	if errors.As(err, &ve) {
		return &ViewError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       ve,
			Context:     ve.Context,
			Component:   ve.Component,
			Recoverable: ve.Recoverable,
		}
	}

	return &ViewError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeTransport || errType == ErrorTypeResolution,
	}
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *ViewError {
	ve := Wrap(err, ErrorTypeConfig, code, message)
	if ve != nil {
		ve.Recoverable = false
	}
	return ve
}

// WrapInternal wraps an error as an internal error
func WrapInternal(err error, code, message string) *ViewError {
	ve := Wrap(err, ErrorTypeInternal, code, message)
	if ve != nil {
		ve.Recoverable = false
	}
	return ve
}

// GetErrorContext extracts context information from a ViewError
func GetErrorContext(err error) map[string]interface{} {
	var ve *ViewError
	if errors.As(err, &ve) {
		context := make(map[string]interface{})
		for k, v := range ve.Context {
			context[k] = v
		}
		if ve.Component != "" {
			context["component"] = ve.Component
		}
		context["type"] = string(ve.Type)
		context["code"] = ve.Code
		context["recoverable"] = ve.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}

// GetRootCause extracts the root cause from a wrapped error
func GetRootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// UserMessage returns the message a placeholder may show for err: the
// backend's own text for application errors, the full chain otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ViewError
	if errors.As(err, &ve) && ve.Type == ErrorTypeApplication {
		return ve.Message
	}
	return err.Error()
}

// CombineErrors combines multiple errors into a single error with context
func CombineErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	if len(nonNil) == 1 {
		return nonNil[0]
	}

	messages := make([]string, 0, len(nonNil))
	for _, err := range nonNil {
		messages = append(messages, err.Error())
	}

	return &ViewError{
		Type:    ErrorTypeInternal,
		Code:    "ERR_MULTIPLE_ERRORS",
		Message: fmt.Sprintf("multiple errors occurred: %d errors", len(nonNil)),
		Cause:   errors.Join(nonNil...),
		Context: map[string]interface{}{
			"error_count": len(nonNil),
			"errors":      messages,
		},
		Recoverable: false,
	}
}
