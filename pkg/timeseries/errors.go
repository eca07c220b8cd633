package timeseries

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInsufficientData is matched by every DataError raised because a table or
// window held fewer rows than the lag depth requires.
var ErrInsufficientData = errors.New("insufficient data")

// ErrMalformed is matched by DataErrors raised for structurally invalid rows.
var ErrMalformed = errors.New("malformed data")

// DataError reports historical data that cannot be forecast from: too few
// rows or rows that violate the table invariants. It is not retried.
type DataError struct {
	Op       string
	Rows     int
	Required int
	Err      error
}

func (e *DataError) Error() string {
	if e.Required > 0 {
		return fmt.Sprintf("%s: %v: have %d rows, need %d", e.Op, e.Err, e.Rows, e.Required)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// Insufficient builds the DataError returned when fewer than required rows exist.
func Insufficient(op string, rows, required int) *DataError {
	return &DataError{Op: op, Rows: rows, Required: required, Err: ErrInsufficientData}
}

// Malformed builds a DataError for rows that break the table invariants.
func Malformed(op, format string, args ...any) *DataError {
	return &DataError{Op: op, Err: fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))}
}

// SchemaMismatchError reports request-time columns that disagree with the
// columns a predictor or scaler was fit on. It signals version skew between
// an artifact and the pipeline and is fatal for the call.
type SchemaMismatchError struct {
	Component string
	Want      []string
	Got       []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: schema mismatch: want [%s], got [%s]",
		e.Component, strings.Join(e.Want, ","), strings.Join(e.Got, ","))
}

// ModelFailure wraps an error raised by the underlying regressor during fit
// or predict. A rollout that sees one aborts without partial results.
type ModelFailure struct {
	Model string
	Op    string
	Err   error
}

func (e *ModelFailure) Error() string {
	return fmt.Sprintf("model %s: %s failed: %v", e.Model, e.Op, e.Err)
}

func (e *ModelFailure) Unwrap() error { return e.Err }
