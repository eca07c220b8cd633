package adapters

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// Querier is the subset of *pgxpool.Pool the sources and the archive use.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DefaultLookback is how much history a source returns unless configured.
const DefaultLookback = 30 * 24 * time.Hour

// Each query returns (bucket, columns...) with hourly buckets ascending. $1
// is the lower time bound. Missing sides of the outer joins come back NULL
// and are interpolated by Resample.
var queries = map[string]string{
	DatasetOutdoor: `
WITH w AS (
	SELECT date_trunc('hour', ts) AS bucket,
	       avg(temperature)::float8 AS temperature,
	       avg(humidity)::float8 AS humidity
	FROM weather_data WHERE ts >= $1 GROUP BY 1
), a AS (
	SELECT date_trunc('hour', ts) AS bucket,
	       avg(pm25)::float8 AS pm25,
	       avg(pm10)::float8 AS pm10
	FROM aqicn_data WHERE ts >= $1 GROUP BY 1
)
SELECT COALESCE(w.bucket, a.bucket) AS bucket, w.temperature, w.humidity, a.pm25, a.pm10
FROM w FULL OUTER JOIN a ON w.bucket = a.bucket
ORDER BY 1 ASC`,

	DatasetIndoor: `
WITH s AS (
	SELECT date_trunc('hour', ts) AS bucket,
	       avg(temperature)::float8 AS temp_in,
	       avg(humidity)::float8 AS hum_in,
	       avg(pm25)::float8 AS pm25_in,
	       avg(pm10)::float8 AS pm10_in
	FROM sensor_data WHERE ts >= $1 GROUP BY 1
), w AS (
	SELECT date_trunc('hour', ts) AS bucket,
	       avg(temperature)::float8 AS temp_out,
	       avg(humidity)::float8 AS hum_out
	FROM weather_data WHERE ts >= $1 GROUP BY 1
), a AS (
	SELECT date_trunc('hour', ts) AS bucket,
	       avg(pm25)::float8 AS pm25_out,
	       avg(pm10)::float8 AS pm10_out
	FROM aqicn_data WHERE ts >= $1 GROUP BY 1
)
SELECT COALESCE(s.bucket, w.bucket, a.bucket) AS bucket,
       s.temp_in, s.hum_in, s.pm25_in, s.pm10_in,
       w.temp_out, w.hum_out, a.pm25_out, a.pm10_out
FROM s
FULL OUTER JOIN w ON w.bucket = s.bucket
FULL OUTER JOIN a ON a.bucket = COALESCE(s.bucket, w.bucket)
ORDER BY 1 ASC`,

	DatasetPM25: `
SELECT date_trunc('hour', ts) AS bucket, avg(pm25)::float8 AS pm25
FROM sensor_data
WHERE ts >= $1 AND pm25 IS NOT NULL
GROUP BY 1
ORDER BY 1 ASC`,
}

// PostgresSource reads datasets from the archive tables.
type PostgresSource struct {
	db       Querier
	lookback time.Duration
	now      func() time.Time
}

// NewPostgresSource creates a source over db returning lookback of history.
// A non-positive lookback selects DefaultLookback.
func NewPostgresSource(db Querier, lookback time.Duration) *PostgresSource {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &PostgresSource{db: db, lookback: lookback, now: time.Now}
}

func (p *PostgresSource) Name() string { return "postgres" }

// Query implements Source.
func (p *PostgresSource) Query(ctx context.Context, dataset string) (*timeseries.Table, error) {
	schema, err := Columns(dataset)
	if err != nil {
		return nil, err
	}
	sql := queries[dataset]
	since := p.now().UTC().Add(-p.lookback)

	rows, err := p.db.Query(ctx, sql, since)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", dataset, err)
	}
	defer rows.Close()

	var readings []reading
	for rows.Next() {
		var bucket time.Time
		cols := make([]*float64, len(schema))
		dest := make([]any, 0, len(schema)+1)
		dest = append(dest, &bucket)
		for i := range cols {
			dest = append(dest, &cols[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", dataset, err)
		}

		values := make([]float64, len(schema))
		for i, v := range cols {
			if v == nil {
				values[i] = math.NaN()
			} else {
				values[i] = *v
			}
		}
		readings = append(readings, reading{ts: bucket, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", dataset, err)
	}

	return hourly(schema, readings)
}
