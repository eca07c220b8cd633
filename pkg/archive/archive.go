// Package archive reads the raw sensor, weather and AQICN records the
// ingestion jobs write to Postgres. It is the read side of the dashboard's
// archive endpoints and shares the connection pool with the forecast data
// source.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DateLayout is the calendar date format accepted and returned by the archive.
const DateLayout = "2006-01-02"

// MonthlyWindow is the span returned by Monthly.
const MonthlyWindow = 30 * 24 * time.Hour

// DB is the subset of *pgxpool.Pool the archive needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SensorRecord is one indoor sensor reading.
type SensorRecord struct {
	ID          int64     `db:"id" json:"id"`
	Timestamp   time.Time `db:"ts" json:"timestamp"`
	Temperature float64   `db:"temperature" json:"temperature"`
	Humidity    float64   `db:"humidity" json:"humidity"`
	PM25        int       `db:"pm25" json:"pm25"`
	PM10        int       `db:"pm10" json:"pm10"`
	Latitude    float64   `db:"latitude" json:"latitude"`
	Longitude   float64   `db:"longitude" json:"longitude"`
}

// WeatherRecord is one outdoor weather observation.
type WeatherRecord struct {
	ID          int64     `db:"id" json:"id"`
	Timestamp   time.Time `db:"ts" json:"ts"`
	Temperature float64   `db:"temperature" json:"temperature"`
	Humidity    float64   `db:"humidity" json:"humidity"`
	WindSpeed   float64   `db:"wind_speed" json:"wind_speed"`
}

// AQICNRecord is one outdoor air quality observation.
type AQICNRecord struct {
	ID        int64     `db:"id" json:"id"`
	Timestamp time.Time `db:"ts" json:"ts"`
	PM25      float64   `db:"pm25" json:"pm25"`
	PM10      float64   `db:"pm10" json:"pm10"`
	AQIScore  int       `db:"aqi_score" json:"aqi_score"`
}

// Reader is the read API of one archive table.
type Reader[T any] interface {
	All(ctx context.Context) ([]T, error)
	Latest(ctx context.Context) (T, bool, error)
	Monthly(ctx context.Context) ([]T, error)
	ByID(ctx context.Context, id int64) (T, bool, error)
	ByDate(ctx context.Context, day time.Time) ([]T, error)
	ByRange(ctx context.Context, start, end time.Time) ([]T, error)
	Dates(ctx context.Context) ([]string, error)
}

// Table reads records of type T from one Postgres table. Column names come
// from T's db tags.
type Table[T any] struct {
	db      DB
	name    string
	columns string
	now     func() time.Time
}

func newTable[T any](db DB, name, columns string) *Table[T] {
	return &Table[T]{db: db, name: name, columns: columns, now: time.Now}
}

// Name returns the table name.
func (t *Table[T]) Name() string { return t.name }

func (t *Table[T]) selectWhere(ctx context.Context, where, tail string, args ...any) ([]T, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s", t.columns, t.name)
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " " + tail

	rows, err := t.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", t.name, err)
	}
	return out, nil
}

func (t *Table[T]) one(ctx context.Context, where, tail string, args ...any) (T, bool, error) {
	var zero T
	out, err := t.selectWhere(ctx, where, tail+" LIMIT 1", args...)
	if err != nil {
		return zero, false, err
	}
	if len(out) == 0 {
		return zero, false, nil
	}
	return out[0], true, nil
}

// All returns every record, oldest first.
func (t *Table[T]) All(ctx context.Context) ([]T, error) {
	return t.selectWhere(ctx, "", "ORDER BY ts ASC, id ASC")
}

// Latest returns the most recent record.
func (t *Table[T]) Latest(ctx context.Context) (T, bool, error) {
	return t.one(ctx, "", "ORDER BY ts DESC, id DESC")
}

// Monthly returns the records of the last MonthlyWindow, oldest first.
func (t *Table[T]) Monthly(ctx context.Context) ([]T, error) {
	return t.selectWhere(ctx, "ts >= $1", "ORDER BY ts ASC, id ASC", t.now().UTC().Add(-MonthlyWindow))
}

// ByID returns the record with the given id.
func (t *Table[T]) ByID(ctx context.Context, id int64) (T, bool, error) {
	return t.one(ctx, "id = $1", "", id)
}

// ByDate returns the records of one UTC calendar day, oldest first.
func (t *Table[T]) ByDate(ctx context.Context, day time.Time) ([]T, error) {
	return t.ByRange(ctx, day, day)
}

// ByRange returns the records from the start of start's day to the end of
// end's day, oldest first.
func (t *Table[T]) ByRange(ctx context.Context, start, end time.Time) ([]T, error) {
	from, to := dayStart(start), dayStart(end).AddDate(0, 0, 1)
	if !to.After(from) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, end.Format(DateLayout), start.Format(DateLayout))
	}
	return t.selectWhere(ctx, "ts >= $1 AND ts < $2", "ORDER BY ts ASC, id ASC", from, to)
}

// Dates returns the distinct UTC calendar days holding records, ascending.
func (t *Table[T]) Dates(ctx context.Context) ([]string, error) {
	sql := fmt.Sprintf(`SELECT DISTINCT to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day FROM %s ORDER BY 1 ASC`, t.name)
	rows, err := t.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query %s dates: %w", t.name, err)
	}
	days, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect %s dates: %w", t.name, err)
	}
	return days, nil
}

// ErrInvalidRange is returned when a date range ends before it starts.
var ErrInvalidRange = errors.New("invalid date range")

// ParseDate parses a YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Repository groups the archive tables.
type Repository struct {
	Sensor  *Table[SensorRecord]
	Weather *Table[WeatherRecord]
	AQICN   *Table[AQICNRecord]

	db DB
}

// NewRepository creates a repository over db.
func NewRepository(db DB) *Repository {
	return &Repository{
		Sensor:  newTable[SensorRecord](db, "sensor_data", "id, ts, temperature, humidity, pm25, pm10, latitude, longitude"),
		Weather: newTable[WeatherRecord](db, "weather_data", "id, ts, temperature, humidity, wind_speed"),
		AQICN:   newTable[AQICNRecord](db, "aqicn_data", "id, ts, pm25, pm10, aqi_score"),
		db:      db,
	}
}

// Schema creates the archive tables and their time indexes if missing.
const Schema = `
CREATE TABLE IF NOT EXISTS sensor_data (
	id          BIGSERIAL PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	temperature DOUBLE PRECISION NOT NULL,
	humidity    DOUBLE PRECISION NOT NULL,
	pm25        INTEGER NOT NULL,
	pm10        INTEGER NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude   DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS sensor_data_ts_idx ON sensor_data (ts);

CREATE TABLE IF NOT EXISTS weather_data (
	id          BIGSERIAL PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	temperature DOUBLE PRECISION NOT NULL,
	humidity    DOUBLE PRECISION NOT NULL,
	wind_speed  DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS weather_data_ts_idx ON weather_data (ts);

CREATE TABLE IF NOT EXISTS aqicn_data (
	id          BIGSERIAL PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	pm25        DOUBLE PRECISION NOT NULL,
	pm10        DOUBLE PRECISION NOT NULL,
	aqi_score   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS aqicn_data_ts_idx ON aqicn_data (ts);
`

// Migrate applies Schema.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate archive schema: %w", err)
	}
	return nil
}
