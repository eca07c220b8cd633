package timeseries

// Window is a fixed-length FIFO of the K most recent rows. Push appends a
// row and evicts the oldest one, so Len is K for the window's whole life.
//
// A Window is not safe for concurrent use; every forecast call owns its own.
type Window struct {
	schema Schema
	rows   []Row
}

// NewWindow copies rows into a window of len(rows). Every row must match the
// schema width.
func NewWindow(schema Schema, rows []Row) (*Window, error) {
	if len(rows) == 0 {
		return nil, Insufficient("window", 0, 1)
	}
	w := &Window{schema: schema, rows: make([]Row, len(rows))}
	for i, r := range rows {
		if len(r.Values) != len(schema) {
			return nil, Malformed("window", "row %d has %d values, schema has %d columns", i, len(r.Values), len(schema))
		}
		w.rows[i] = r.Clone()
	}
	return w, nil
}

// Schema returns the column order of the window's rows.
func (w *Window) Schema() Schema { return w.schema }

// Len returns the window length.
func (w *Window) Len() int { return len(w.rows) }

// Rows returns the rows oldest first. The slice must not be modified.
func (w *Window) Rows() []Row { return w.rows }

// Last returns the most recent row.
func (w *Window) Last() Row { return w.rows[len(w.rows)-1] }

// Push appends row and evicts the oldest row.
func (w *Window) Push(row Row) error {
	if len(row.Values) != len(w.schema) {
		return Malformed("window push", "row has %d values, schema has %d columns", len(row.Values), len(w.schema))
	}
	copy(w.rows, w.rows[1:])
	w.rows[len(w.rows)-1] = row.Clone()
	return nil
}

// Clone returns an independent copy of the window.
func (w *Window) Clone() *Window {
	c := &Window{schema: w.schema, rows: make([]Row, len(w.rows))}
	for i, r := range w.rows {
		c.rows[i] = r.Clone()
	}
	return c
}
