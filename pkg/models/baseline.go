package models

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/Phantawat/BreatheEasy/pkg/features"
	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// BaselineModel predicts each target as its most recent value plus a damped
// share of the slope across the lag window:
//
//	y(t+1) = lag1 + Damping[target] * (lag1 - lagK) / (K - 1)
//
// Fit learns Damping per target by least squares, clamped to [0, 1]. With
// zero damping the model is pure persistence. It is cheap enough to serve
// as a fallback variant and a reference point for the tree ensemble.
type BaselineModel struct {
	layout  features.Layout
	targets []string
	Damping []float64
}

// NewBaselineModel creates an unfitted baseline model.
func NewBaselineModel() *BaselineModel {
	return &BaselineModel{}
}

// NewPersistenceModel returns a baseline already bound to layout that
// repeats the last observed target values.
func NewPersistenceModel(layout features.Layout, targets []string) *BaselineModel {
	return &BaselineModel{layout: layout, targets: slices.Clone(targets), Damping: make([]float64, len(targets))}
}

// Name returns the model identifier.
func (m *BaselineModel) Name() string {
	return "baseline"
}

// Layout returns the fitted feature layout.
func (m *BaselineModel) Layout() features.Layout {
	return m.layout
}

// Targets returns the fitted target columns.
func (m *BaselineModel) Targets() []string {
	return slices.Clone(m.targets)
}

// Fit estimates the damping factor of every target.
func (m *BaselineModel) Fit(ctx context.Context, ds *features.Dataset) error {
	if err := checkDataset(m.Name(), ds); err != nil {
		return err
	}
	for _, t := range ds.Targets {
		if !ds.Layout.Columns.Has(t) {
			return &timeseries.SchemaMismatchError{Component: m.Name(), Want: ds.Targets, Got: ds.Layout.Columns}
		}
	}

	damping := make([]float64, len(ds.Targets))
	for ti, target := range ds.Targets {
		var num, den float64
		for i, x := range ds.X {
			last, slope := trend(features.Vector{Layout: ds.Layout, Values: x}, target)
			num += (ds.Y[i][ti] - last) * slope
			den += slope * slope
		}
		if den > 0 {
			damping[ti] = math.Max(0, math.Min(1, num/den))
		}
	}

	m.layout = ds.Layout
	m.targets = slices.Clone(ds.Targets)
	m.Damping = damping
	return nil
}

// PredictOne extrapolates the damped trend one step ahead.
func (m *BaselineModel) PredictOne(ctx context.Context, v features.Vector) (features.Targets, error) {
	if m.Damping == nil {
		return features.Targets{}, &timeseries.ModelFailure{Model: m.Name(), Op: "predict", Err: ErrNotFitted}
	}
	if err := checkVector(m.Name(), m.layout, v); err != nil {
		return features.Targets{}, err
	}
	out := features.Targets{Columns: slices.Clone(m.targets), Values: make([]float64, len(m.targets))}
	for i, target := range m.targets {
		last, slope := trend(v, target)
		out.Values[i] = last + m.Damping[i]*slope
	}
	if !finite(out.Values) {
		return features.Targets{}, &timeseries.ModelFailure{Model: m.Name(), Op: "predict", Err: fmt.Errorf("non-finite prediction %v", out.Values)}
	}
	return out, nil
}

// trend returns the lag-1 value of column and its mean per-step change over
// the window.
func trend(v features.Vector, column string) (float64, float64) {
	last, _ := v.Get(column, 1)
	k := v.Layout.Lags
	if k < 2 {
		return last, 0
	}
	first, _ := v.Get(column, k)
	return last, (last - first) / float64(k-1)
}
