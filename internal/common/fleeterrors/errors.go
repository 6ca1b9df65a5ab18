// Package fleeterrors contains the error types shared across the scheduling
// components. Callers branch on the concrete type (via errors.As) rather than
// matching on messages; a transport failure, an exhausted suite deadline and a
// missing resource each imply a different remediation and must stay distinct.
//
// If multiple independent errors occur in some function (e.g., several steps
// of a scheduler tick failing), that function should return an error of type
// multierror.Error from package github.com/hashicorp/go-multierror that
// encapsulates those individual errors.
package fleeterrors

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrInfra represents a failure of the infrastructure itself: the task queue
// or the lease store could not be reached, or returned a malformed response.
// It is never produced for a test that merely failed; infra errors are not
// consumed by the retry budget and propagate to the caller, which may retry
// the whole suite invocation.
type ErrInfra struct {
	// Service that failed, e.g. "taskqueue" or "leasestore".
	Service string
	// The operation that was attempted.
	Method  string
	Message string
}

func (err *ErrInfra) Error() (s string) {
	s = fmt.Sprintf("infra failure in %s.%s", err.Service, err.Method)
	if err.Message != "" {
		s = s + fmt.Sprintf(": %s", err.Message)
	}
	return
}

// ErrSuiteTimeout is returned when a suite's wall-clock budget elapsed before
// all child tasks settled. Distinct from every child failing: a timeout means
// results were never fully collected.
type ErrSuiteTimeout struct {
	// Wall-clock budget that elapsed.
	Budget time.Duration
	// Number of tasks still not terminal when the budget ran out.
	Outstanding int
}

func (err *ErrSuiteTimeout) Error() string {
	return fmt.Sprintf(
		"suite timed out after %s with %d tasks still outstanding",
		err.Budget, err.Outstanding)
}

// ErrNotFound is a generic error to be returned whenever some resource isn't
// found. Type and Message are optional and are omitted from the error message
// if not provided.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q not found", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q not found", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidArgument represents an invalid argument to some operation.
type ErrInvalidArgument struct {
	// Name of the field referred to.
	Name string
	// Value of the field.
	Value interface{}
	// Optional message included with the error message.
	Message string
}

func (err *ErrInvalidArgument) Error() (s string) {
	s = fmt.Sprintf("value %v is invalid for field %s", err.Value, err.Name)
	if err.Message != "" {
		s = s + fmt.Sprintf("; %s", err.Message)
	}
	return
}

// IsInfra reports whether err has an ErrInfra anywhere in its chain.
func IsInfra(err error) bool {
	var target *ErrInfra
	return errors.As(err, &target)
}

// IsSuiteTimeout reports whether err has an ErrSuiteTimeout in its chain.
func IsSuiteTimeout(err error) bool {
	var target *ErrSuiteTimeout
	return errors.As(err, &target)
}

// IsNotFound reports whether err has an ErrNotFound in its chain.
func IsNotFound(err error) bool {
	var target *ErrNotFound
	return errors.As(err, &target)
}
