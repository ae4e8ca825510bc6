package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the route events pipeline
var (
	// ErrValidation marks a malformed request
	ErrValidation = errors.New("validation error")

	// ErrGeometry marks a degenerate route or a non-positive buffer
	ErrGeometry = errors.New("geometry error")

	// ErrUpstream marks a failed geocoding, routing, index or embedding call
	ErrUpstream = errors.New("upstream error")
)

// StageError wraps a failure with the pipeline stage that produced it
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

// NewStageError wraps err for stage; kind is one of the sentinel errors above
func NewStageError(stage string, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	if e.Kind != nil && !errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}
