package models

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LinearNetwork is a ridge regression over the flattened scaled window plus
// a bias term.
type LinearNetwork struct {
	Lambda  float64     `json:"lambda"`
	Inputs  int         `json:"inputs"`
	Weights [][]float64 `json:"weights"` // (Inputs+1) x outputs, bias last
}

// NewLinearNetwork creates an unfitted ridge network. lambda <= 0 selects 1e-3.
func NewLinearNetwork(lambda float64) *LinearNetwork {
	if lambda <= 0 {
		lambda = 1e-3
	}
	return &LinearNetwork{Lambda: lambda}
}

// Name returns the network identifier.
func (n *LinearNetwork) Name() string {
	return "linear"
}

// Fit solves (XᵀX + λI)W = XᵀY. The bias column is not penalised.
func (n *LinearNetwork) Fit(ctx context.Context, windows [][][]float64, y [][]float64) error {
	if len(windows) == 0 || len(windows) != len(y) {
		return fmt.Errorf("linear: %d windows for %d targets", len(windows), len(y))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	inputs := len(flatten(windows[0]))
	outputs := len(y[0])
	d := inputs + 1

	x := mat.NewDense(len(windows), d, nil)
	for i, w := range windows {
		row := flatten(w)
		if len(row) != inputs {
			return fmt.Errorf("linear: window %d has %d inputs, want %d", i, len(row), inputs)
		}
		x.SetRow(i, append(row, 1))
	}
	yy := mat.NewDense(len(y), outputs, nil)
	for i, r := range y {
		yy.SetRow(i, r)
	}

	var a mat.Dense
	a.Mul(x.T(), x)
	for j := range inputs {
		a.Set(j, j, a.At(j, j)+n.Lambda)
	}
	var b mat.Dense
	b.Mul(x.T(), yy)

	var w mat.Dense
	if err := w.Solve(&a, &b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("linear: solve: %w", err)
		}
	}

	n.Inputs = inputs
	n.Weights = make([][]float64, d)
	for j := range d {
		n.Weights[j] = mat.Row(nil, j, &w)
	}
	return nil
}

// Predict evaluates the fitted weights on one window.
func (n *LinearNetwork) Predict(ctx context.Context, window [][]float64) ([]float64, error) {
	if n.Weights == nil {
		return nil, ErrNotFitted
	}
	x := flatten(window)
	if len(x) != n.Inputs {
		return nil, fmt.Errorf("linear: window has %d inputs, want %d", len(x), n.Inputs)
	}
	out := make([]float64, len(n.Weights[0]))
	for o := range out {
		sum := n.Weights[n.Inputs][o]
		for j, v := range x {
			sum += v * n.Weights[j][o]
		}
		out[o] = sum
	}
	return out, nil
}

func flatten(window [][]float64) []float64 {
	var out []float64
	for _, r := range window {
		out = append(out, r...)
	}
	return out
}
