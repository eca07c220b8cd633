//go:build integration

package archive

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// setupPostgres starts a Postgres container and returns a migrated repository.
func setupPostgres(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("breatheeasy"),
		postgres.WithUsername("breatheeasy"),
		postgres.WithPassword("breatheeasy"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(pool.Close)

	repo := NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return repo, pool
}

func TestRepository_ReadsRecords(t *testing.T) {
	repo, pool := setupPostgres(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
INSERT INTO aqicn_data (ts, pm25, pm10, aqi_score) VALUES
	('2025-04-07T10:00:00Z', 35.5, 60, 101),
	('2025-04-07T11:00:00Z', 40.0, 65, 112),
	('2025-04-09T09:00:00Z', 20.0, 30, 68)`)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	all, err := repo.AQICN.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 3 || all[0].PM25 != 35.5 || all[0].AQIScore != 101 {
		t.Fatalf("unexpected records %+v", all)
	}

	latest, ok, err := repo.AQICN.Latest(ctx)
	if err != nil || !ok {
		t.Fatalf("Latest = %v, %v", ok, err)
	}
	if !latest.Timestamp.Equal(time.Date(2025, 4, 9, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Latest ts = %s", latest.Timestamp)
	}

	rec, ok, err := repo.AQICN.ByID(ctx, all[1].ID)
	if err != nil || !ok || rec.PM25 != 40 {
		t.Errorf("ByID = %+v, %v, %v", rec, ok, err)
	}
	if _, ok, _ := repo.AQICN.ByID(ctx, 9999); ok {
		t.Error("ByID(9999) should not be found")
	}

	day, _ := ParseDate("2025-04-07")
	byDate, err := repo.AQICN.ByDate(ctx, day)
	if err != nil || len(byDate) != 2 {
		t.Errorf("ByDate = %d records, %v; want 2", len(byDate), err)
	}

	end, _ := ParseDate("2025-04-09")
	byRange, err := repo.AQICN.ByRange(ctx, day, end)
	if err != nil || len(byRange) != 3 {
		t.Errorf("ByRange = %d records, %v; want 3", len(byRange), err)
	}

	dates, err := repo.AQICN.Dates(ctx)
	if err != nil {
		t.Fatalf("Dates failed: %v", err)
	}
	if len(dates) != 2 || dates[0] != "2025-04-07" || dates[1] != "2025-04-09" {
		t.Errorf("Dates = %v", dates)
	}

	sensors, err := repo.Sensor.All(ctx)
	if err != nil || len(sensors) != 0 {
		t.Errorf("Sensor.All = %v, %v; want empty", sensors, err)
	}
}
