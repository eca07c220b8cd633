// Package timeseries holds the time-indexed table shared by feature
// building, training and rollout, together with the error taxonomy every
// forecasting component reports through.
//
// Rows carry their values positionally, aligned to the table's Schema. The
// schema is the single agreed column order between training and inference,
// so a column mismatch is detected by comparing schemas rather than by a
// failed name lookup deep inside a model.
package timeseries

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Hour is the interval every archived dataset is resampled to.
const Hour = time.Hour

// Schema is an ordered list of numeric column names.
type Schema []string

// Index returns the position of column name, or -1.
func (s Schema) Index(name string) int {
	return slices.Index(s, name)
}

// Has reports whether name is a column of the schema.
func (s Schema) Has(name string) bool {
	return s.Index(name) >= 0
}

// Equal reports whether both schemas list the same columns in the same order.
func (s Schema) Equal(other Schema) bool {
	return slices.Equal(s, other)
}

// Row is one observation. Values align with the owning table's Schema.
type Row struct {
	Timestamp time.Time
	Values    []float64
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	return Row{Timestamp: r.Timestamp, Values: slices.Clone(r.Values)}
}

// Table is an ordered sequence of rows under one schema.
type Table struct {
	Schema Schema
	Rows   []Row
}

// NewTable returns an empty table for the given columns.
func NewTable(columns ...string) *Table {
	return &Table{Schema: Schema(slices.Clone(columns))}
}

// Append adds a row. values must match the schema width.
func (t *Table) Append(ts time.Time, values ...float64) error {
	if len(values) != len(t.Schema) {
		return Malformed("append", "row at %s has %d values, schema has %d columns",
			ts.Format(time.RFC3339), len(values), len(t.Schema))
	}
	t.Rows = append(t.Rows, Row{Timestamp: ts, Values: slices.Clone(values)})
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Last returns the most recent row. It panics on an empty table.
func (t *Table) Last() Row {
	return t.Rows[len(t.Rows)-1]
}

// Tail returns deep copies of the last n rows, oldest first.
func (t *Table) Tail(n int) ([]Row, error) {
	if n > len(t.Rows) {
		return nil, Insufficient("tail", len(t.Rows), n)
	}
	out := make([]Row, n)
	for i, r := range t.Rows[len(t.Rows)-n:] {
		out[i] = r.Clone()
	}
	return out, nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{Schema: slices.Clone(t.Schema), Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Column returns a copy of one column's values.
func (t *Table) Column(name string) ([]float64, error) {
	idx := t.Schema.Index(name)
	if idx < 0 {
		return nil, &SchemaMismatchError{Component: "table", Want: []string{name}, Got: t.Schema}
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Values[idx]
	}
	return out, nil
}

// Select returns a new table restricted to columns, in the given order.
func (t *Table) Select(columns ...string) (*Table, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = t.Schema.Index(c)
		if idx[i] < 0 {
			return nil, &SchemaMismatchError{Component: "table", Want: columns, Got: t.Schema}
		}
	}
	out := &Table{Schema: Schema(slices.Clone(columns)), Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		values := make([]float64, len(idx))
		for j, k := range idx {
			values[j] = r.Values[k]
		}
		out.Rows[i] = Row{Timestamp: r.Timestamp, Values: values}
	}
	return out, nil
}

// Validate checks the table invariants: every row matches the schema width
// and timestamps increase strictly at exactly interval apart. A zero
// interval only checks ordering.
func (t *Table) Validate(interval time.Duration) error {
	for i, r := range t.Rows {
		if len(r.Values) != len(t.Schema) {
			return Malformed("validate", "row %d has %d values, schema has %d columns", i, len(r.Values), len(t.Schema))
		}
		if i == 0 {
			continue
		}
		prev := t.Rows[i-1].Timestamp
		if !r.Timestamp.After(prev) {
			return Malformed("validate", "row %d timestamp %s not after %s", i,
				r.Timestamp.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		if interval > 0 && r.Timestamp.Sub(prev) != interval {
			return Malformed("validate", "row %d is %s after previous row, want %s", i, r.Timestamp.Sub(prev), interval)
		}
	}
	return nil
}

// CheckFinite reports the first NaN or infinite value as malformed data.
// Raw tables may carry NaN gaps for Resample to fill; a table handed to a
// model must not.
func (t *Table) CheckFinite() error {
	for i, r := range t.Rows {
		for c, v := range r.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Malformed("validate", "row %d (%s) column %s is %v", i,
					r.Timestamp.Format(time.RFC3339), t.Schema[c], v)
			}
		}
	}
	return nil
}

func (t *Table) String() string {
	return fmt.Sprintf("table(%d rows, columns=%v)", len(t.Rows), []string(t.Schema))
}
