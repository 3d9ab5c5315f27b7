package errors

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// RenderFailure records one component that could not be rendered.
type RenderFailure struct {
	Component string
	IslandID  string
	Err       error
	Timestamp time.Time
}

// Error implements the error interface
func (rf *RenderFailure) Error() string {
	return fmt.Sprintf("%s (%s): %v", rf.Component, rf.IslandID, rf.Err)
}

func (rf *RenderFailure) Unwrap() error {
	return rf.Err
}

// ErrorCollector collects the failures of one document transform.
type ErrorCollector struct {
	failures []RenderFailure
	errors   []error
	mutex    sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		failures: make([]RenderFailure, 0),
		errors:   make([]error, 0),
	}
}

// Add adds a render failure to the collector
func (ec *ErrorCollector) Add(f RenderFailure) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	ec.failures = append(ec.failures, f)
}

// AddError adds a general error to the collector
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = append(ec.errors, err)
}

// Failures returns a copy of the collected render failures
func (ec *ErrorCollector) Failures() []RenderFailure {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]RenderFailure, len(ec.failures))
	copy(result, ec.failures)
	return result
}

// GetAllErrors returns all collected errors, failures first.
func (ec *ErrorCollector) GetAllErrors() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	all := make([]error, 0, len(ec.failures)+len(ec.errors))
	for i := range ec.failures {
		all = append(all, &ec.failures[i])
	}
	all = append(all, ec.errors...)

	return all
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.failures) > 0 || len(ec.errors) > 0
}

// Count returns the number of collected errors.
func (ec *ErrorCollector) Count() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.failures) + len(ec.errors)
}

// ByType counts failures per error type; untyped errors count as internal.
func (ec *ErrorCollector) ByType() map[ErrorType]int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	counts := make(map[ErrorType]int)
	for _, f := range ec.failures {
		counts[typeOf(f.Err)]++
	}
	for _, err := range ec.errors {
		counts[typeOf(err)]++
	}
	return counts
}

// Components returns the names of failed components in insertion order.
func (ec *ErrorCollector) Components() []string {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	names := make([]string, 0, len(ec.failures))
	for _, f := range ec.failures {
		names = append(names, f.Component)
	}
	return names
}

// Summary renders a single line for logging.
func (ec *ErrorCollector) Summary() string {
	counts := ec.ByType()
	if len(counts) == 0 {
		return "no errors"
	}

	order := []ErrorType{
		ErrorTypeResolution, ErrorTypeTransport, ErrorTypeProtocol,
		ErrorTypeApplication, ErrorTypeSupervision, ErrorTypeConfig,
		ErrorTypeValidation, ErrorTypeInternal,
	}
	var parts []string
	for _, t := range order {
		if n := counts[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", t, n))
		}
	}
	return strings.Join(parts, " ")
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures = ec.failures[:0]
	ec.errors = ec.errors[:0]
}

func typeOf(err error) ErrorType {
	var ve *ViewError
	if errors.As(err, &ve) {
		return ve.Type
	}
	return ErrorTypeInternal
}
