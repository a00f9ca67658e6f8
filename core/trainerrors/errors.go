// Package trainerrors contains the typed errors returned by the orchestration
// core. Callers should classify errors with errors.As rather than matching on
// message text; the REST layer maps these types onto HTTP status codes.
package trainerrors

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned whenever a requested resource does not exist.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "model" or "run"
	Value   string // Resource name, e.g., "veh_v1"
	Message string // An optional message to include in the error message
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		s = s + "; " + err.Message
	}
	return s
}

// ErrInvalidArgument is returned on invalid caller input. The job is rejected
// synchronously; no run record is created.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "epochCount"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrCapability wraps a failure reported by an external training or inference
// backend. It is caught at the job-body boundary and recorded on the run
// instead of propagating to the submitter.
type ErrCapability struct {
	Op  string // The capability operation, "train" or "infer"
	Err error
}

func (err *ErrCapability) Error() string {
	return fmt.Sprintf("%s capability failed: %v", err.Op, err.Err)
}

func (err *ErrCapability) Unwrap() error {
	return err.Err
}

// IsNotFound reports whether any error in err's chain is an *ErrNotFound.
func IsNotFound(err error) bool {
	var notFound *ErrNotFound
	return errors.As(err, &notFound)
}
