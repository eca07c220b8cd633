// Package adapters provides the historical data sources the forecaster reads
// from. Every source returns an hourly timeseries.Table for one of a fixed
// set of logical datasets, so the forecasting layers never see storage
// details.
//
// Available sources:
//   - PostgresSource - buckets the archive tables hourly in SQL
//   - HTTPSource     - pulls readings from any JSON API via gjson paths
//   - MemorySource   - fixed tables for tests and local development
//   - Cached         - wraps any source with the shared TTL cache
package adapters

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// Logical datasets.
const (
	DatasetOutdoor = "outdoor"
	DatasetIndoor  = "indoor"
	DatasetPM25    = "pm25"
)

// ErrUnknownDataset is returned for a dataset name no source knows.
var ErrUnknownDataset = errors.New("unknown dataset")

var schemas = map[string]timeseries.Schema{
	DatasetOutdoor: {"temperature", "humidity", "pm25", "pm10"},
	DatasetIndoor:  {"temp_in", "hum_in", "pm25_in", "pm10_in", "temp_out", "hum_out", "pm25_out", "pm10_out"},
	DatasetPM25:    {"pm25"},
}

// Columns returns the column order of dataset.
func Columns(dataset string) (timeseries.Schema, error) {
	s, ok := schemas[dataset]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, dataset)
	}
	return slices.Clone(s), nil
}

// Datasets lists the known dataset names, sorted.
func Datasets() []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source is the interface all data sources implement.
//
// Query returns the dataset's history resampled to one row per hour, oldest
// first. Gaps are interpolated. The call is synchronous and must respect
// context cancellation.
type Source interface {
	Query(ctx context.Context, dataset string) (*timeseries.Table, error)

	// Name returns a short identifier, e.g. "postgres" or "http".
	Name() string
}

// reading is one raw observation before hourly bucketing. NaN marks a
// missing value.
type reading struct {
	ts     time.Time
	values []float64
}

// hourly orders raw readings, averages readings that share a timestamp and
// resamples them onto the hourly grid.
func hourly(schema timeseries.Schema, readings []reading) (*timeseries.Table, error) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].ts.Before(readings[j].ts)
	})

	raw := &timeseries.Table{Schema: schema}
	for i := 0; i < len(readings); {
		j := i + 1
		for j < len(readings) && readings[j].ts.Equal(readings[i].ts) {
			j++
		}
		raw.Rows = append(raw.Rows, timeseries.Row{Timestamp: readings[i].ts.UTC(), Values: mean(readings[i:j], len(schema))})
		i = j
	}
	return timeseries.Resample(raw, timeseries.Hour)
}

func mean(group []reading, width int) []float64 {
	out := make([]float64, width)
	for c := range width {
		var sum float64
		var n int
		for _, r := range group {
			if !math.IsNaN(r.values[c]) {
				sum += r.values[c]
				n++
			}
		}
		if n == 0 {
			out[c] = math.NaN()
		} else {
			out[c] = sum / float64(n)
		}
	}
	return out
}
