// Package models provides the one-step predictors the rollout engine drives,
// the providers that hand a fitted predictor to each forecast call, and the
// direct statistical models served alongside them.
package models

import (
	"context"
	"errors"
	"math"

	"github.com/Phantawat/BreatheEasy/pkg/features"
	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// ErrNotFitted is wrapped in the ModelFailure returned by PredictOne on a
// predictor that was never fit or loaded.
var ErrNotFitted = errors.New("predictor not fitted")

// Predictor predicts the next row's target values from one lag-feature vector.
//
// A fitted Predictor is read-only: PredictOne may be called concurrently.
type Predictor interface {
	// Name identifies the predictor kind in logs, metrics and artifacts.
	Name() string

	// Fit trains on a dataset whose layout and targets the predictor then
	// requires at prediction time.
	Fit(ctx context.Context, ds *features.Dataset) error

	// PredictOne returns one value per fitted target column.
	PredictOne(ctx context.Context, v features.Vector) (features.Targets, error)

	// Layout returns the fitted feature layout.
	Layout() features.Layout

	// Targets returns the fitted target columns in prediction order.
	Targets() []string
}

// checkDataset rejects datasets no predictor can be fit on.
func checkDataset(name string, ds *features.Dataset) error {
	if ds == nil || ds.Len() == 0 {
		return timeseries.Insufficient(name+" fit", 0, 1)
	}
	if len(ds.Targets) == 0 {
		return &timeseries.SchemaMismatchError{Component: name, Want: []string{"<target>"}, Got: nil}
	}
	for i := range ds.X {
		if !finite(ds.X[i]) || !finite(ds.Y[i]) {
			return timeseries.Malformed(name+" fit", "non-finite value in pair %d (%s)", i, ds.Index[i])
		}
	}
	return nil
}

// checkVector verifies v was built with the fitted layout.
func checkVector(name string, fitted features.Layout, v features.Vector) error {
	if !fitted.Equal(v.Layout) {
		return &timeseries.SchemaMismatchError{Component: name, Want: fitted.Names(), Got: v.Layout.Names()}
	}
	if len(v.Values) != fitted.Width() {
		return timeseries.Malformed(name+" predict", "vector has %d values, layout has %d", len(v.Values), fitted.Width())
	}
	return nil
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
