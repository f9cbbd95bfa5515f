package fuleeca

import (
	"errors"
	"fmt"
)

// ErrDegenerate is returned by the solvers when the circulant built from a
// candidate, or from every sample's rounded coefficients, is numerically
// singular. The attack controller treats it as a failed attempt.
var ErrDegenerate = errors.New("numerically degenerate circulant")

// ErrNoProfile is returned when neither a typical profile nor a reference key
// is available to derive one from.
var ErrNoProfile = errors.New("no typical key profile available")

// FormatError reports a malformed sample source.
type FormatError struct {
	Row    int // 0-based row of the source, -1 when not row specific
	Reason string
}

func (e *FormatError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("malformed sample source: %s", e.Reason)
	}
	return fmt.Sprintf("malformed sample source at row %d: %s", e.Row, e.Reason)
}

// ParameterError reports an unsupported security category or an invalid
// parameter set.
type ParameterError struct {
	Category int
	Reason   string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameters for category %d: %s", e.Category, e.Reason)
}
