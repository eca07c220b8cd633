package features

import (
	"slices"
	"time"

	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// Dataset is a supervised training set: X[i] is the lag vector preceding the
// row at Index[i], Y[i] holds that row's target values.
type Dataset struct {
	Layout  Layout
	Targets []string
	X       [][]float64
	Y       [][]float64
	Index   []time.Time
}

// Len returns the number of feature/target pairs.
func (d *Dataset) Len() int {
	return len(d.X)
}

// BuildDataset slides the lag builder across table and returns every pair
// it can form: exactly L-K pairs for a table of L > K rows, aligned to rows
// K..L-1. A table of L <= K rows yields an empty dataset.
func BuildDataset(table *timeseries.Table, lags int, targets []string) (*Dataset, error) {
	b, err := NewBuilder(table.Schema, lags)
	if err != nil {
		return nil, err
	}
	for _, name := range targets {
		if !table.Schema.Has(name) {
			return nil, &timeseries.SchemaMismatchError{Component: "dataset", Want: targets, Got: table.Schema}
		}
	}

	ds := &Dataset{Layout: b.Layout(), Targets: slices.Clone(targets)}
	if err := ds.appendFrom(b, table, lags); err != nil {
		return nil, err
	}
	return ds, nil
}

// Extend appends pairs for rows of table whose timestamps are after the
// dataset's last index. Rebuilding from scratch over the same table yields
// the same dataset as extending an earlier build.
func (d *Dataset) Extend(table *timeseries.Table) (int, error) {
	b, err := NewBuilder(table.Schema, d.Layout.Lags)
	if err != nil {
		return 0, err
	}
	if !b.Layout().Equal(d.Layout) {
		return 0, &timeseries.SchemaMismatchError{Component: "dataset", Want: d.Layout.Columns, Got: table.Schema}
	}

	start := d.Layout.Lags
	if n := len(d.Index); n > 0 {
		last := d.Index[n-1]
		for start < table.Len() && !table.Rows[start].Timestamp.After(last) {
			start++
		}
	}
	before := d.Len()
	if err := d.appendFrom(b, table, start); err != nil {
		return 0, err
	}
	return d.Len() - before, nil
}

func (d *Dataset) appendFrom(b *Builder, table *timeseries.Table, start int) error {
	k := b.Lags()
	if table.Len() <= k {
		return nil
	}
	for i := start; i < table.Len(); i++ {
		vec, tv, err := b.Pair(table, i, d.Targets)
		if err != nil {
			return err
		}
		d.X = append(d.X, vec.Values)
		d.Y = append(d.Y, tv.Values)
		d.Index = append(d.Index, table.Rows[i].Timestamp)
	}
	return nil
}
