package models

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// MinMaxScaler maps each column of an explicit, ordered column subset onto
// [0, 1] using the range seen at fit time. A column with zero range scales
// to 0 and inverse-scales back to its constant value.
type MinMaxScaler struct {
	Columns []string  `json:"columns"`
	Min     []float64 `json:"min"`
	Max     []float64 `json:"max"`
}

// NewMinMaxScaler creates an unfitted scaler over columns.
func NewMinMaxScaler(columns []string) *MinMaxScaler {
	return &MinMaxScaler{Columns: slices.Clone(columns)}
}

// Fit records per-column min and max. rows are in scaler column order.
func (s *MinMaxScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return timeseries.Insufficient("scaler fit", 0, 1)
	}
	n := len(s.Columns)
	col := make([]float64, len(rows))
	s.Min = make([]float64, n)
	s.Max = make([]float64, n)
	for c := range n {
		for i, r := range rows {
			if len(r) != n {
				return timeseries.Malformed("scaler fit", "row %d has %d values, scaler has %d columns", i, len(r), n)
			}
			col[i] = r[c]
		}
		s.Min[c] = floats.Min(col)
		s.Max[c] = floats.Max(col)
	}
	return nil
}

// Fitted reports whether Fit has run.
func (s *MinMaxScaler) Fitted() bool {
	return len(s.Min) == len(s.Columns) && len(s.Columns) > 0
}

// Transform scales one row in scaler column order.
func (s *MinMaxScaler) Transform(row []float64) ([]float64, error) {
	if err := s.check(row); err != nil {
		return nil, err
	}
	out := make([]float64, len(row))
	for c, v := range row {
		if span := s.Max[c] - s.Min[c]; span != 0 {
			out[c] = (v - s.Min[c]) / span
		}
	}
	return out, nil
}

// Inverse maps one scaled row back to original units.
func (s *MinMaxScaler) Inverse(row []float64) ([]float64, error) {
	if err := s.check(row); err != nil {
		return nil, err
	}
	out := make([]float64, len(row))
	for c, v := range row {
		out[c] = v*(s.Max[c]-s.Min[c]) + s.Min[c]
	}
	return out, nil
}

// ScaleValue scales a single value of column c.
func (s *MinMaxScaler) ScaleValue(c int, v float64) float64 {
	span := s.Max[c] - s.Min[c]
	if span == 0 {
		return 0
	}
	return (v - s.Min[c]) / span
}

func (s *MinMaxScaler) check(row []float64) error {
	if !s.Fitted() {
		return fmt.Errorf("scaler: %w", ErrNotFitted)
	}
	if len(row) != len(s.Columns) {
		return timeseries.Malformed("scale", "row has %d values, scaler has %d columns", len(row), len(s.Columns))
	}
	return nil
}
