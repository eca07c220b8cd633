package adapters

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRows replays fixed result rows. A nil value scans as SQL NULL.
type fakeRows struct {
	rows [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) { return r.rows[r.pos-1], nil }

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *time.Time:
			*d = v.(time.Time)
		case **float64:
			if v == nil {
				*d = nil
			} else {
				f := v.(float64)
				*d = &f
			}
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeQuerier struct {
	rows  [][]any
	err   error
	sql   string
	since time.Time
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql = sql
	if len(args) > 0 {
		q.since, _ = args[0].(time.Time)
	}
	if q.err != nil {
		return nil, q.err
	}
	return &fakeRows{rows: q.rows}, nil
}

func TestPostgresSource_QueryInterpolatesNulls(t *testing.T) {
	t0 := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	q := &fakeQuerier{rows: [][]any{
		{t0, 30.0, 60.0, 10.0, 20.0},
		{t0.Add(time.Hour), 31.0, nil, nil, 22.0},
		{t0.Add(3 * time.Hour), 33.0, 64.0, 16.0, 26.0},
	}}
	src := NewPostgresSource(q, 48*time.Hour)
	src.now = func() time.Time { return t0.Add(4 * time.Hour) }

	tbl, err := src.Query(context.Background(), DatasetOutdoor)
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if !strings.Contains(q.sql, "weather_data") || !strings.Contains(q.sql, "aqicn_data") {
		t.Errorf("outdoor query should join weather and aqicn tables: %s", q.sql)
	}
	if want := t0.Add(-44 * time.Hour); !q.since.Equal(want) {
		t.Errorf("since = %s, want %s", q.since, want)
	}
	if tbl.Len() != 4 {
		t.Fatalf("expected 4 hourly rows, got %d", tbl.Len())
	}

	humidity, _ := tbl.Column("humidity")
	wantHumidity := []float64{60, 61.333333333, 62.666666667, 64}
	for i := range wantHumidity {
		if math.Abs(humidity[i]-wantHumidity[i]) > 1e-6 {
			t.Errorf("humidity[%d] = %v, want %v", i, humidity[i], wantHumidity[i])
		}
	}
	pm25, _ := tbl.Column("pm25")
	if math.Abs(pm25[1]-12) > 1e-9 || math.Abs(pm25[2]-14) > 1e-9 {
		t.Errorf("pm25 = %v, want gap filled with 12, 14", pm25)
	}
}

func TestPostgresSource_Errors(t *testing.T) {
	ctx := context.Background()

	src := NewPostgresSource(&fakeQuerier{}, 0)
	if _, err := src.Query(ctx, "rainfall"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("expected ErrUnknownDataset, got %v", err)
	}

	boom := errors.New("connection refused")
	src = NewPostgresSource(&fakeQuerier{err: boom}, 0)
	if _, err := src.Query(ctx, DatasetPM25); !errors.Is(err, boom) {
		t.Errorf("expected wrapped query error, got %v", err)
	}

	src = NewPostgresSource(&fakeQuerier{rows: [][]any{{time.Now()}}}, 0)
	if _, err := src.Query(ctx, DatasetPM25); err == nil {
		t.Error("expected scan error, got nil")
	}
}

func TestPostgresSource_EmptyResult(t *testing.T) {
	src := NewPostgresSource(&fakeQuerier{}, 0)
	tbl, err := src.Query(context.Background(), DatasetIndoor)
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if tbl.Len() != 0 || len(tbl.Schema) != 8 {
		t.Errorf("expected empty 8-column table, got %s", tbl)
	}
}
