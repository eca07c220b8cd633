package forecast

import (
	"math"
	"slices"
	"time"
)

// Point is one forecast step.
type Point struct {
	Timestamp time.Time
	Values    []float64
}

// Forecast is an assembled, rounded forecast ready for rendering.
type Forecast struct {
	Columns []string
	Points  []Point
}

// Assemble stamps each step of seq with Origin + i*Interval and rounds the
// values to two decimals.
func Assemble(seq *Sequence) *Forecast {
	f := &Forecast{Columns: slices.Clone(seq.Targets), Points: make([]Point, seq.Len())}
	for i, row := range seq.Values {
		values := make([]float64, len(row))
		for j, v := range row {
			values[j] = round2(v)
		}
		f.Points[i] = Point{Timestamp: seq.Timestamp(i + 1), Values: values}
	}
	return f
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Records renders one map per step, oldest first, holding the RFC3339
// timestamp under timeKey and each column's value under its name.
func (f *Forecast) Records(timeKey string) []map[string]any {
	out := make([]map[string]any, len(f.Points))
	for i, p := range f.Points {
		rec := make(map[string]any, len(f.Columns)+1)
		rec[timeKey] = p.Timestamp.UTC().Format(time.RFC3339)
		for j, c := range f.Columns {
			rec[c] = p.Values[j]
		}
		out[i] = rec
	}
	return out
}

// Keyed renders a map from RFC3339 timestamp to the step's column values.
func (f *Forecast) Keyed() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(f.Points))
	for _, p := range f.Points {
		vals := make(map[string]float64, len(f.Columns))
		for j, c := range f.Columns {
			vals[c] = p.Values[j]
		}
		out[p.Timestamp.UTC().Format(time.RFC3339)] = vals
	}
	return out
}

// Render returns Records(timeKey) for "records" and Keyed() for "keyed".
func (f *Forecast) Render(format, timeKey string) any {
	if format == FormatKeyed {
		return f.Keyed()
	}
	return f.Records(timeKey)
}

// Output formats.
const (
	FormatRecords = "records"
	FormatKeyed   = "keyed"
)
