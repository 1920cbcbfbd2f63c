package domain

import "fmt"

// ValidationError reports a malformed or out-of-range input field. The
// request is rejected before any feature derivation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnknownModelError reports that a caller named a model that is not loaded
// in the registry. This is a caller error (4xx-equivalent).
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q: not loaded", e.Model)
}

// ModelUnavailableError reports that a specifically requested model is
// loaded but failed to produce a probability.
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %q unavailable: %v", e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}

// ErrPredictionUnavailable is returned when no scoring signal at all is
// available: every classifier failed and the anomaly reference is missing.
// An unavailable aggregate never produces a default verdict.
var ErrPredictionUnavailable = fmt.Errorf("prediction unavailable: no scoring signal")
