// Package forecast turns a one-step predictor into a multi-step forecast.
//
// The Engine rolls a predictor forward over a private copy of the caller's
// lag window: each step's prediction becomes the newest row of the window
// the next step reads. The Assembler renders the resulting Sequence for the
// HTTP boundary, and the Service ties data source, provider, engine and
// assembler together per request.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Phantawat/BreatheEasy/pkg/features"
	"github.com/Phantawat/BreatheEasy/pkg/models"
	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// ErrInvalidHorizon is returned for a horizon below one step.
var ErrInvalidHorizon = errors.New("horizon must be >= 1")

// Sequence is the raw output of a rollout: Values[i] holds the target values
// of step i+1, at Origin + (i+1)*Interval.
type Sequence struct {
	Origin   time.Time
	Interval time.Duration
	Targets  []string
	Values   [][]float64
}

// Len returns the number of steps.
func (s *Sequence) Len() int { return len(s.Values) }

// Timestamp returns the timestamp of step (1-based).
func (s *Sequence) Timestamp(step int) time.Time {
	return s.Origin.Add(time.Duration(step) * s.Interval)
}

// Engine performs recursive multi-step rollouts.
type Engine struct {
	interval time.Duration
}

// NewEngine creates an engine stepping interval per prediction.
func NewEngine(interval time.Duration) (*Engine, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0, got %s", interval)
	}
	return &Engine{interval: interval}, nil
}

// Interval returns the step interval.
func (e *Engine) Interval() time.Duration { return e.interval }

// Rollout predicts horizon steps ahead of window. The lag depth is the
// window length. Each new row copies the previous newest row, advances its
// timestamp by the interval and overwrites the target columns with the
// prediction, so non-target columns carry forward unchanged.
//
// The window is not modified. Either exactly horizon steps are returned or
// an error with no partial result.
func (e *Engine) Rollout(ctx context.Context, p models.Predictor, window *timeseries.Window, horizon int) (*Sequence, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidHorizon, horizon)
	}

	w := window.Clone()
	b, err := features.NewBuilder(w.Schema(), w.Len())
	if err != nil {
		return nil, err
	}

	targets := slices.Clone(p.Targets())
	if len(targets) == 0 {
		return nil, &timeseries.SchemaMismatchError{Component: "rollout", Want: []string{"<target>"}, Got: nil}
	}
	idx := make([]int, len(targets))
	for i, name := range targets {
		idx[i] = w.Schema().Index(name)
		if idx[i] < 0 {
			return nil, &timeseries.SchemaMismatchError{Component: "rollout", Want: targets, Got: w.Schema()}
		}
	}

	seq := &Sequence{
		Origin:   w.Last().Timestamp,
		Interval: e.interval,
		Targets:  targets,
		Values:   make([][]float64, 0, horizon),
	}

	for step := 1; step <= horizon; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("rollout step %d: %w", step, err)
		}

		vec, err := b.Vector(w.Rows())
		if err != nil {
			return nil, fmt.Errorf("rollout step %d: %w", step, err)
		}
		out, err := p.PredictOne(ctx, vec)
		if err != nil {
			return nil, fmt.Errorf("rollout step %d: %w", step, err)
		}
		if !slices.Equal(out.Columns, targets) || len(out.Values) != len(targets) {
			return nil, &timeseries.SchemaMismatchError{Component: "rollout", Want: targets, Got: out.Columns}
		}

		next := w.Last().Clone()
		next.Timestamp = next.Timestamp.Add(e.interval)
		for i, c := range idx {
			next.Values[c] = out.Values[i]
		}
		if err := w.Push(next); err != nil {
			return nil, fmt.Errorf("rollout step %d: %w", step, err)
		}
		seq.Values = append(seq.Values, slices.Clone(out.Values))
	}
	return seq, nil
}
