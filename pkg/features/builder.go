// Package features turns trailing windows of a time-series table into flat
// lag-feature vectors, and slides that transformation over full history to
// build supervised training sets.
//
// The traversal order is fixed by Layout: lag 1 (the most recent row) to lag
// K on the outside, schema columns on the inside. Training and inference both
// go through Layout, so a model fit on a dataset and a rollout that feeds it
// always agree on which position holds which value.
package features

import (
	"fmt"
	"slices"

	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// Layout fixes the column and lag ordering of a feature vector.
type Layout struct {
	Columns timeseries.Schema `json:"columns"`
	Lags    int               `json:"lags"`
}

// Width returns the number of features.
func (l Layout) Width() int {
	return len(l.Columns) * l.Lags
}

// Name returns the feature name at lag (1-based) for column.
func Name(column string, lag int) string {
	return fmt.Sprintf("%s_lag%d", column, lag)
}

// Names lists feature names in vector order.
func (l Layout) Names() []string {
	names := make([]string, 0, l.Width())
	for lag := 1; lag <= l.Lags; lag++ {
		for _, c := range l.Columns {
			names = append(names, Name(c, lag))
		}
	}
	return names
}

// Offset returns the vector position of column at lag, or -1.
func (l Layout) Offset(column string, lag int) int {
	c := l.Columns.Index(column)
	if c < 0 || lag < 1 || lag > l.Lags {
		return -1
	}
	return (lag-1)*len(l.Columns) + c
}

// Equal reports whether both layouts produce identically ordered vectors.
func (l Layout) Equal(other Layout) bool {
	return l.Lags == other.Lags && l.Columns.Equal(other.Columns)
}

// Vector is one flat lag-feature vector.
type Vector struct {
	Layout Layout
	Values []float64
}

// Get returns the value of column at lag.
func (v Vector) Get(column string, lag int) (float64, bool) {
	i := v.Layout.Offset(column, lag)
	if i < 0 {
		return 0, false
	}
	return v.Values[i], true
}

// Row returns the values of all columns at lag, in schema order.
func (v Vector) Row(lag int) []float64 {
	n := len(v.Layout.Columns)
	start := (lag - 1) * n
	return slices.Clone(v.Values[start : start+n])
}

// Map renders the vector as name → value.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.Values))
	for i, name := range v.Layout.Names() {
		out[name] = v.Values[i]
	}
	return out
}

// Targets is an ordered mapping of target column to value.
type Targets struct {
	Columns []string
	Values  []float64
}

// Get returns the value for column.
func (t Targets) Get(column string) (float64, bool) {
	i := slices.Index(t.Columns, column)
	if i < 0 {
		return 0, false
	}
	return t.Values[i], true
}

// Builder derives feature vectors from windows of a fixed schema.
type Builder struct {
	layout Layout
}

// NewBuilder creates a builder for lags trailing rows of schema.
func NewBuilder(schema timeseries.Schema, lags int) (*Builder, error) {
	if lags < 1 {
		return nil, fmt.Errorf("lag depth must be >= 1, got %d", lags)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema cannot be empty")
	}
	return &Builder{layout: Layout{Columns: slices.Clone(schema), Lags: lags}}, nil
}

// Layout returns the builder's vector layout.
func (b *Builder) Layout() Layout {
	return b.layout
}

// Lags returns the lag depth K.
func (b *Builder) Lags() int {
	return b.layout.Lags
}

// Vector derives a feature vector from exactly K rows, oldest first.
func (b *Builder) Vector(rows []timeseries.Row) (Vector, error) {
	k := b.layout.Lags
	if len(rows) != k {
		return Vector{}, timeseries.Insufficient("build features", len(rows), k)
	}
	width := len(b.layout.Columns)
	values := make([]float64, 0, b.layout.Width())
	for lag := 1; lag <= k; lag++ {
		r := rows[len(rows)-lag]
		if len(r.Values) != width {
			return Vector{}, timeseries.Malformed("build features", "row has %d values, schema has %d columns", len(r.Values), width)
		}
		values = append(values, r.Values...)
	}
	return Vector{Layout: b.layout, Values: values}, nil
}

// Pair derives the feature vector from rows i-K..i-1 of table and the target
// vector from row i. The table's schema must equal the builder's.
func (b *Builder) Pair(table *timeseries.Table, i int, targets []string) (Vector, Targets, error) {
	k := b.layout.Lags
	if table.Len() < k+1 {
		return Vector{}, Targets{}, timeseries.Insufficient("build features", table.Len(), k+1)
	}
	if i < k || i >= table.Len() {
		return Vector{}, Targets{}, fmt.Errorf("row index %d out of range [%d, %d)", i, k, table.Len())
	}
	if !table.Schema.Equal(b.layout.Columns) {
		return Vector{}, Targets{}, &timeseries.SchemaMismatchError{Component: "features", Want: b.layout.Columns, Got: table.Schema}
	}

	vec, err := b.Vector(table.Rows[i-k : i])
	if err != nil {
		return Vector{}, Targets{}, err
	}
	tv, err := b.targets(table.Rows[i], targets)
	if err != nil {
		return Vector{}, Targets{}, err
	}
	return vec, tv, nil
}

func (b *Builder) targets(row timeseries.Row, targets []string) (Targets, error) {
	tv := Targets{Columns: slices.Clone(targets), Values: make([]float64, len(targets))}
	for j, name := range targets {
		idx := b.layout.Columns.Index(name)
		if idx < 0 {
			return Targets{}, &timeseries.SchemaMismatchError{Component: "features", Want: targets, Got: b.layout.Columns}
		}
		tv.Values[j] = row.Values[idx]
	}
	return tv, nil
}
