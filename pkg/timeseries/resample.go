package timeseries

import (
	"math"
	"time"
)

// Resample buckets rows into fixed intervals (truncated timestamps), averages
// each bucket per column, and fills empty buckets by linear interpolation
// between the nearest populated buckets. NaN values are ignored when
// averaging. The result satisfies Validate(interval).
func Resample(t *Table, interval time.Duration) (*Table, error) {
	if interval <= 0 {
		return nil, Malformed("resample", "interval must be > 0, got %s", interval)
	}
	out := &Table{Schema: t.Schema}
	if len(t.Rows) == 0 {
		return out, nil
	}
	if err := t.Validate(0); err != nil {
		return nil, err
	}

	width := len(t.Schema)
	start := t.Rows[0].Timestamp.Truncate(interval)
	end := t.Last().Timestamp.Truncate(interval)
	n := int(end.Sub(start)/interval) + 1

	sums := make([][]float64, n)
	counts := make([][]int, n)
	for i := range sums {
		sums[i] = make([]float64, width)
		counts[i] = make([]int, width)
	}
	for _, r := range t.Rows {
		b := int(r.Timestamp.Truncate(interval).Sub(start) / interval)
		for c, v := range r.Values {
			if math.IsNaN(v) {
				continue
			}
			sums[b][c] += v
			counts[b][c]++
		}
	}

	out.Rows = make([]Row, n)
	for b := range n {
		values := make([]float64, width)
		for c := range width {
			if counts[b][c] > 0 {
				values[c] = sums[b][c] / float64(counts[b][c])
			} else {
				values[c] = math.NaN()
			}
		}
		out.Rows[b] = Row{Timestamp: start.Add(time.Duration(b) * interval), Values: values}
	}

	for c := range width {
		interpolateColumn(out.Rows, c)
	}
	return out, nil
}

// interpolateColumn fills NaN runs linearly between known neighbours. Leading
// and trailing runs take the nearest known value.
func interpolateColumn(rows []Row, c int) {
	prev := -1
	for i := range rows {
		if math.IsNaN(rows[i].Values[c]) {
			continue
		}
		if prev == -1 {
			for j := 0; j < i; j++ {
				rows[j].Values[c] = rows[i].Values[c]
			}
		} else if i-prev > 1 {
			lo, hi := rows[prev].Values[c], rows[i].Values[c]
			span := float64(i - prev)
			for j := prev + 1; j < i; j++ {
				rows[j].Values[c] = lo + (hi-lo)*float64(j-prev)/span
			}
		}
		prev = i
	}
	if prev >= 0 {
		for j := prev + 1; j < len(rows); j++ {
			rows[j].Values[c] = rows[prev].Values[c]
		}
	}
}
