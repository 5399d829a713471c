package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed caller input such as undecodable images.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("record not found")

	// ErrCapabilityUnavailable marks a model or library that was not loaded.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrInference marks a failure raised by a loaded model during prediction.
	ErrInference = errors.New("inference failed")

	// ErrFeatureMismatch marks a vector whose length differs from the model's.
	ErrFeatureMismatch = errors.New("feature dimension mismatch")

	// ErrConfiguration marks a missing credential or endpoint for an optional call path.
	ErrConfiguration = errors.New("configuration missing")
)

// FeatureMismatchError reports the expected and actual vector lengths.
type FeatureMismatchError struct {
	Expected int
	Got      int
}

func (e *FeatureMismatchError) Error() string {
	return fmt.Sprintf("feature dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

func (e *FeatureMismatchError) Unwrap() error { return ErrFeatureMismatch }

// InferenceError wraps an error raised by a capability during prediction.
type InferenceError struct {
	Capability string
	Err        error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s: inference failed: %v", e.Capability, e.Err)
}

func (e *InferenceError) Unwrap() []error { return []error{ErrInference, e.Err} }
