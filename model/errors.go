package model

import (
	"errors"
	"fmt"
)

// ErrNoMatch reports that no stored input row equals the queried sample.
var ErrNoMatch = errors.New("input not found in model data")

// ParameterError reports a malformed constructor argument.
type ParameterError struct {
	Param  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}

// ValidationError reports bad data discovered while loading a model:
// NaN values, mismatched row counts, duplicate input rows.
type ValidationError struct {
	Source string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid model data (%s): %s", e.Source, e.Reason)
}

// SampleError reports a sample that cannot be evaluated: empty, NaN,
// wrong length, or a matrix with more than one row.
type SampleError struct {
	Reason string
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("invalid sample: %s", e.Reason)
}
