package models

import (
	"context"
	"fmt"
	"slices"

	"github.com/Phantawat/BreatheEasy/pkg/features"
	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// EnsembleConfig holds gradient-boosting hyperparameters.
type EnsembleConfig struct {
	Estimators     int     `json:"estimators"`
	MaxDepth       int     `json:"maxDepth"`
	LearningRate   float64 `json:"learningRate"`
	MinSamplesLeaf int     `json:"minSamplesLeaf"`
}

// DefaultEnsembleConfig returns 100 trees of depth 4 at learning rate 0.1.
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{Estimators: 100, MaxDepth: 4, LearningRate: 0.1, MinSamplesLeaf: 1}
}

func (c EnsembleConfig) validate() error {
	if c.Estimators < 1 {
		return fmt.Errorf("estimators must be >= 1, got %d", c.Estimators)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max depth must be >= 1, got %d", c.MaxDepth)
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0, 1], got %g", c.LearningRate)
	}
	if c.MinSamplesLeaf < 1 {
		return fmt.Errorf("min samples per leaf must be >= 1, got %d", c.MinSamplesLeaf)
	}
	return nil
}

// EnsembleModel is an unscaled multi-output tree ensemble: one boosted
// ensemble per target column, each reading the raw lag-feature vector.
type EnsembleModel struct {
	cfg      EnsembleConfig
	layout   features.Layout
	targets  []string
	boosters []*booster
}

// NewEnsembleModel creates an unfitted ensemble.
func NewEnsembleModel(cfg EnsembleConfig) (*EnsembleModel, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &EnsembleModel{cfg: cfg}, nil
}

// Name returns the model identifier.
func (m *EnsembleModel) Name() string {
	return "ensemble"
}

// Layout returns the fitted feature layout.
func (m *EnsembleModel) Layout() features.Layout {
	return m.layout
}

// Targets returns the fitted target columns.
func (m *EnsembleModel) Targets() []string {
	return slices.Clone(m.targets)
}

// Fit trains one booster per target column of ds.
func (m *EnsembleModel) Fit(ctx context.Context, ds *features.Dataset) error {
	if err := checkDataset(m.Name(), ds); err != nil {
		return err
	}

	sorted := sortByFeature(ds.X)
	boosters := make([]*booster, len(ds.Targets))
	y := make([]float64, ds.Len())
	for t := range ds.Targets {
		for i := range ds.Y {
			y[i] = ds.Y[i][t]
		}
		b, err := fitBooster(ctx, ds.X, sorted, y, m.cfg)
		if err != nil {
			return &timeseries.ModelFailure{Model: m.Name(), Op: "fit " + ds.Targets[t], Err: err}
		}
		boosters[t] = b
	}

	m.layout = ds.Layout
	m.targets = slices.Clone(ds.Targets)
	m.boosters = boosters
	return nil
}

// PredictOne evaluates every target's booster on v.
func (m *EnsembleModel) PredictOne(ctx context.Context, v features.Vector) (features.Targets, error) {
	if err := ctx.Err(); err != nil {
		return features.Targets{}, err
	}
	if m.boosters == nil {
		return features.Targets{}, &timeseries.ModelFailure{Model: m.Name(), Op: "predict", Err: ErrNotFitted}
	}
	if err := checkVector(m.Name(), m.layout, v); err != nil {
		return features.Targets{}, err
	}

	out := features.Targets{Columns: slices.Clone(m.targets), Values: make([]float64, len(m.targets))}
	for t, b := range m.boosters {
		out.Values[t] = b.predict(v.Values)
	}
	if !finite(out.Values) {
		return features.Targets{}, &timeseries.ModelFailure{Model: m.Name(), Op: "predict", Err: fmt.Errorf("non-finite prediction %v", out.Values)}
	}
	return out, nil
}
