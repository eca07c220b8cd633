package models

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Phantawat/BreatheEasy/pkg/features"
	"github.com/Phantawat/BreatheEasy/pkg/storage"
	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// ErrArtifactNotFound is returned when the artifact store has no artifact
// for the requested id or variant.
var ErrArtifactNotFound = errors.New("artifact not found")

// Provider hands each forecast call a fitted predictor whose layout matches
// the call's history.
type Provider interface {
	Provide(ctx context.Context, history *timeseries.Table) (Predictor, error)
}

// Factory creates an unfitted predictor.
type Factory func() (Predictor, error)

// TrainOnDemand fits a fresh predictor on every call's history.
type TrainOnDemand struct {
	New     Factory
	Lags    int
	Targets []string
}

// Provide builds the dataset from history and fits a new predictor on it.
func (p *TrainOnDemand) Provide(ctx context.Context, history *timeseries.Table) (Predictor, error) {
	ds, err := features.BuildDataset(history, p.Lags, p.Targets)
	if err != nil {
		return nil, fmt.Errorf("train on demand: %w", err)
	}
	if ds.Len() == 0 {
		return nil, timeseries.Insufficient("train on demand", history.Len(), p.Lags+1)
	}

	pred, err := p.New()
	if err != nil {
		return nil, fmt.Errorf("train on demand: %w", err)
	}
	if err := pred.Fit(ctx, ds); err != nil {
		return nil, fmt.Errorf("train on demand: %w", err)
	}
	return pred, nil
}

// ArtifactLoader decodes a predictor from the artifact store. An empty ID
// loads the latest artifact of Variant.
type ArtifactLoader struct {
	Store   storage.Store
	Variant string
	ID      string
	Lags    int
	Targets []string
}

// Provide loads the artifact and checks its layout against history.
func (p *ArtifactLoader) Provide(ctx context.Context, history *timeseries.Table) (Predictor, error) {
	var (
		a     storage.Artifact
		found bool
		err   error
	)
	if p.ID != "" {
		a, found, err = p.Store.Get(ctx, p.ID)
	} else {
		a, found, err = p.Store.Latest(ctx, p.Variant)
	}
	if err != nil {
		return nil, fmt.Errorf("load artifact for %s: %w", p.Variant, err)
	}
	if !found {
		return nil, fmt.Errorf("load artifact for %s (id=%q): %w", p.Variant, p.ID, ErrArtifactNotFound)
	}

	pred, err := Unmarshal(a.Data)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", a.ID, err)
	}

	want := features.Layout{Columns: history.Schema, Lags: p.Lags}
	if !pred.Layout().Equal(want) {
		return nil, &timeseries.SchemaMismatchError{Component: "artifact " + a.ID, Want: pred.Layout().Names(), Got: want.Names()}
	}
	if len(p.Targets) > 0 && !slices.Equal(pred.Targets(), p.Targets) {
		return nil, &timeseries.SchemaMismatchError{Component: "artifact " + a.ID, Want: p.Targets, Got: pred.Targets()}
	}
	return pred, nil
}

// Save encodes pred and stores it under a new id as the latest artifact of
// variant.
func Save(ctx context.Context, store storage.Store, variant string, pred Predictor, now time.Time) (string, error) {
	data, err := Marshal(pred)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := store.Put(ctx, storage.Artifact{ID: id, Variant: variant, CreatedAt: now.UTC(), Data: data}); err != nil {
		return "", fmt.Errorf("save artifact for %s: %w", variant, err)
	}
	return id, nil
}
