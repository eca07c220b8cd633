package timeseries

import (
	"errors"
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)

func hourly(t *testing.T, columns []string, rows ...[]float64) *Table {
	t.Helper()
	tbl := NewTable(columns...)
	for i, v := range rows {
		if err := tbl.Append(t0.Add(time.Duration(i)*time.Hour), v...); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	return tbl
}

func TestTable_Append_WidthMismatch(t *testing.T) {
	tbl := NewTable("a", "b")
	err := tbl.Append(t0, 1)
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("Append() error = %v, want *DataError", err)
	}
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("error should match ErrMalformed, got %v", err)
	}
}

func TestTable_Validate(t *testing.T) {
	tests := []struct {
		name    string
		stamps  []time.Time
		wantErr bool
	}{
		{"hourly", []time.Time{t0, t0.Add(time.Hour), t0.Add(2 * time.Hour)}, false},
		{"duplicate", []time.Time{t0, t0}, true},
		{"decreasing", []time.Time{t0.Add(time.Hour), t0}, true},
		{"gap", []time.Time{t0, t0.Add(2 * time.Hour)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := NewTable("v")
			for _, ts := range tt.stamps {
				tbl.Rows = append(tbl.Rows, Row{Timestamp: ts, Values: []float64{1}})
			}
			err := tbl.Validate(Hour)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTable_Tail(t *testing.T) {
	tbl := hourly(t, []string{"v"}, []float64{1}, []float64{2}, []float64{3})

	rows, err := tbl.Tail(2)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if rows[0].Values[0] != 2 || rows[1].Values[0] != 3 {
		t.Errorf("Tail(2) = %v, want values 2,3", rows)
	}

	rows[0].Values[0] = 99
	if tbl.Rows[1].Values[0] != 2 {
		t.Error("Tail() must return copies")
	}

	if _, err := tbl.Tail(4); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Tail(4) error = %v, want ErrInsufficientData", err)
	}
}

func TestTable_Select(t *testing.T) {
	tbl := hourly(t, []string{"a", "b", "c"}, []float64{1, 2, 3})

	sel, err := tbl.Select("c", "a")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !sel.Schema.Equal(Schema{"c", "a"}) {
		t.Errorf("Schema = %v, want [c a]", sel.Schema)
	}
	if sel.Rows[0].Values[0] != 3 || sel.Rows[0].Values[1] != 1 {
		t.Errorf("Values = %v, want [3 1]", sel.Rows[0].Values)
	}

	_, err = tbl.Select("z")
	var sm *SchemaMismatchError
	if !errors.As(err, &sm) {
		t.Errorf("Select(z) error = %v, want *SchemaMismatchError", err)
	}
}

func TestWindow_PushKeepsLength(t *testing.T) {
	tbl := hourly(t, []string{"v"}, []float64{1}, []float64{2}, []float64{3})
	w, err := NewWindow(tbl.Schema, tbl.Rows)
	if err != nil {
		t.Fatalf("NewWindow() error = %v", err)
	}

	for i := range 10 {
		if err := w.Push(Row{Timestamp: t0.Add(time.Duration(3+i) * time.Hour), Values: []float64{float64(4 + i)}}); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
		if w.Len() != 3 {
			t.Fatalf("Len() = %d after push %d, want 3", w.Len(), i)
		}
	}

	want := []float64{11, 12, 13}
	for i, r := range w.Rows() {
		if r.Values[0] != want[i] {
			t.Errorf("row %d = %v, want %v", i, r.Values[0], want[i])
		}
	}

	if tbl.Rows[0].Values[0] != 1 {
		t.Error("window must not alias the source rows")
	}
}

func TestWindow_PushRejectsWrongWidth(t *testing.T) {
	w, _ := NewWindow(Schema{"a", "b"}, []Row{{Timestamp: t0, Values: []float64{1, 2}}})
	if err := w.Push(Row{Timestamp: t0, Values: []float64{1}}); err == nil {
		t.Error("Push() should reject a row of the wrong width")
	}
}

func TestResample_AveragesAndInterpolates(t *testing.T) {
	tbl := NewTable("pm25")
	tbl.Rows = []Row{
		{Timestamp: t0.Add(10 * time.Minute), Values: []float64{10}},
		{Timestamp: t0.Add(40 * time.Minute), Values: []float64{20}},
		{Timestamp: t0.Add(3*time.Hour + 5*time.Minute), Values: []float64{45}},
	}

	out, err := Resample(tbl, Hour)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	if err := out.Validate(Hour); err != nil {
		t.Fatalf("resampled table invalid: %v", err)
	}

	want := []float64{15, 25, 35, 45}
	if out.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", out.Len(), len(want))
	}
	for i, r := range out.Rows {
		if math.Abs(r.Values[0]-want[i]) > 1e-9 {
			t.Errorf("row %d = %v, want %v", i, r.Values[0], want[i])
		}
	}
}

func TestTable_CheckFinite(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{"finite", 3.5, false},
		{"nan", math.NaN(), true},
		{"positive inf", math.Inf(1), true},
		{"negative inf", math.Inf(-1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := hourly(t, []string{"pm25", "humidity"}, []float64{1, 2}, []float64{2, tt.value})
			err := tbl.CheckFinite()
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckFinite() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformed) {
				t.Errorf("CheckFinite() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestResample_EmptyColumnStaysNaN(t *testing.T) {
	nan := math.NaN()
	tbl := hourly(t, []string{"pm25", "humidity"}, []float64{1, nan}, []float64{2, nan}, []float64{3, nan})

	out, err := Resample(tbl, Hour)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	if err := out.Validate(Hour); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := out.CheckFinite(); !errors.Is(err, ErrMalformed) {
		t.Errorf("CheckFinite() on a column with no readings error = %v, want ErrMalformed", err)
	}
}
