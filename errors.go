package cropsight

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a prototype lookup misses.
	ErrNotFound = errors.New("prototype not found")

	// ErrNoPrototypes is returned by the classifier when the store holds no
	// prototypes. The detection chain treats it as "local path unavailable"
	// and falls through to the next provider.
	ErrNoPrototypes = errors.New("no prototypes available")
)

// DuplicateClassError is returned when learning a class label that already
// exists. Labels match case-insensitively and the existing prototype is left
// untouched.
type DuplicateClassError struct {
	Label string
}

func (e *DuplicateClassError) Error() string {
	return fmt.Sprintf("class %q already learned", e.Label)
}

// ValidationError reports rejected arguments to a learn or classify call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// ProviderError records the failure of a single detection provider attempt.
// The chain absorbs these; they surface only inside AllProvidersFailedError.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AllProvidersFailedError is returned when every provider in the detection
// chain failed. It carries each provider's individual failure for diagnostics.
type AllProvidersFailedError struct {
	Failures []*ProviderError
}

func (e *AllProvidersFailedError) Error() string {
	reasons := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		reasons[i] = f.Error()
	}
	return "all detection providers failed: " + strings.Join(reasons, "; ")
}

func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
