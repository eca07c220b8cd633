package models

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Phantawat/BreatheEasy/pkg/features"
	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// Network maps a scaled window (rows oldest first, scaler column order) to
// scaled predictions for the target columns.
type Network interface {
	Name() string
	Fit(ctx context.Context, windows [][][]float64, y [][]float64) error
	Predict(ctx context.Context, window [][]float64) ([]float64, error)
}

// SequenceModel is a scaled sequence predictor. The window is restricted to
// the scaler's columns, scaled, passed through the network, and the scaled
// target predictions are inverse-scaled alongside the last known values of
// the remaining columns.
type SequenceModel struct {
	columns   []string
	targets   []string
	targetIdx []int
	net       Network
	scaler    *MinMaxScaler
	layout    features.Layout
	colIdx    []int
}

// NewSequenceModel creates an unfitted sequence model. columns is the
// ordered scaler subset; targets must be drawn from it.
func NewSequenceModel(columns, targets []string, net Network) (*SequenceModel, error) {
	if len(columns) == 0 || len(targets) == 0 {
		return nil, errors.New("sequence model needs at least one column and one target")
	}
	if net == nil {
		return nil, errors.New("sequence model needs a network")
	}
	idx := make([]int, len(targets))
	for i, t := range targets {
		idx[i] = slices.Index(columns, t)
		if idx[i] < 0 {
			return nil, &timeseries.SchemaMismatchError{Component: "sequence", Want: targets, Got: columns}
		}
	}
	return &SequenceModel{
		columns:   slices.Clone(columns),
		targets:   slices.Clone(targets),
		targetIdx: idx,
		net:       net,
		scaler:    NewMinMaxScaler(columns),
	}, nil
}

// Name returns the model identifier including the network kind.
func (m *SequenceModel) Name() string {
	return "sequence/" + m.net.Name()
}

// Layout returns the fitted feature layout.
func (m *SequenceModel) Layout() features.Layout {
	return m.layout
}

// Targets returns the target columns.
func (m *SequenceModel) Targets() []string {
	return slices.Clone(m.targets)
}

// Scaler returns the fitted scaler.
func (m *SequenceModel) Scaler() *MinMaxScaler {
	return m.scaler
}

// Fit fits the scaler on every window row of ds, then the network on the
// scaled windows and scaled targets.
func (m *SequenceModel) Fit(ctx context.Context, ds *features.Dataset) error {
	if err := checkDataset(m.Name(), ds); err != nil {
		return err
	}
	if !slices.Equal(ds.Targets, m.targets) {
		return &timeseries.SchemaMismatchError{Component: m.Name(), Want: m.targets, Got: ds.Targets}
	}
	colIdx, err := m.bind(ds.Layout)
	if err != nil {
		return err
	}

	windows := make([][][]float64, ds.Len())
	var all [][]float64
	for i, x := range ds.X {
		windows[i] = restrict(features.Vector{Layout: ds.Layout, Values: x}, colIdx)
		all = append(all, windows[i]...)
	}
	if err := m.scaler.Fit(all); err != nil {
		return err
	}

	y := make([][]float64, ds.Len())
	for i := range windows {
		for r, row := range windows[i] {
			if windows[i][r], err = m.scaler.Transform(row); err != nil {
				return err
			}
		}
		y[i] = make([]float64, len(m.targets))
		for t, c := range m.targetIdx {
			y[i][t] = m.scaler.ScaleValue(c, ds.Y[i][t])
		}
	}

	if err := m.net.Fit(ctx, windows, y); err != nil {
		return asModelFailure(m.Name(), "fit", err)
	}
	m.layout = ds.Layout
	m.colIdx = colIdx
	return nil
}

// PredictOne runs restrict → scale → infer → reassemble → inverse-scale.
func (m *SequenceModel) PredictOne(ctx context.Context, v features.Vector) (features.Targets, error) {
	if m.colIdx == nil || !m.scaler.Fitted() {
		return features.Targets{}, &timeseries.ModelFailure{Model: m.Name(), Op: "predict", Err: ErrNotFitted}
	}
	if err := checkVector(m.Name(), m.layout, v); err != nil {
		return features.Targets{}, err
	}

	window := restrict(v, m.colIdx)
	for r, row := range window {
		scaled, err := m.scaler.Transform(row)
		if err != nil {
			return features.Targets{}, err
		}
		window[r] = scaled
	}

	preds, err := m.net.Predict(ctx, window)
	if err != nil {
		return features.Targets{}, asModelFailure(m.Name(), "predict", err)
	}
	if len(preds) != len(m.targets) {
		return features.Targets{}, &timeseries.ModelFailure{Model: m.Name(), Op: "predict",
			Err: fmt.Errorf("network returned %d values for %d targets", len(preds), len(m.targets))}
	}

	full := slices.Clone(window[len(window)-1])
	for t, c := range m.targetIdx {
		full[c] = preds[t]
	}
	row, err := m.scaler.Inverse(full)
	if err != nil {
		return features.Targets{}, err
	}

	out := features.Targets{Columns: slices.Clone(m.targets), Values: make([]float64, len(m.targets))}
	for t, c := range m.targetIdx {
		out.Values[t] = row[c]
	}
	if !finite(out.Values) {
		return features.Targets{}, &timeseries.ModelFailure{Model: m.Name(), Op: "predict", Err: fmt.Errorf("non-finite prediction %v", out.Values)}
	}
	return out, nil
}

// bind resolves the scaler columns inside layout.
func (m *SequenceModel) bind(layout features.Layout) ([]int, error) {
	idx := make([]int, len(m.columns))
	for i, c := range m.columns {
		idx[i] = layout.Columns.Index(c)
		if idx[i] < 0 {
			return nil, &timeseries.SchemaMismatchError{Component: m.Name(), Want: m.columns, Got: layout.Columns}
		}
	}
	return idx, nil
}

// restrict decodes v into rows oldest first, keeping only colIdx.
func restrict(v features.Vector, colIdx []int) [][]float64 {
	k := v.Layout.Lags
	out := make([][]float64, k)
	for lag := k; lag >= 1; lag-- {
		full := v.Row(lag)
		row := make([]float64, len(colIdx))
		for i, c := range colIdx {
			row[i] = full[c]
		}
		out[k-lag] = row
	}
	return out
}

func asModelFailure(model, op string, err error) error {
	var mf *timeseries.ModelFailure
	var sm *timeseries.SchemaMismatchError
	if errors.As(err, &mf) || errors.As(err, &sm) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &timeseries.ModelFailure{Model: model, Op: op, Err: err}
}
