//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/Phantawat/BreatheEasy/cmd/forecaster/config"
	"github.com/Phantawat/BreatheEasy/cmd/forecaster/metrics"
	"github.com/Phantawat/BreatheEasy/cmd/forecaster/router"
	"github.com/Phantawat/BreatheEasy/cmd/forecaster/setup"
	"github.com/Phantawat/BreatheEasy/pkg/archive"
	"github.com/Phantawat/BreatheEasy/pkg/forecast"
)

const historyHours = 48

func setupPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("breatheeasy"),
		postgres.WithUsername("breatheeasy"),
		postgres.WithPassword("secret"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pg); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres dsn: %v", err)
	}
	return dsn
}

func setupRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	rc, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(rc); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := rc.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

func newConfig(t *testing.T, dsn string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.DatabaseURL = dsn
	cfg.Migrate = true
	cfg.Source = "postgres"
	cfg.CacheTTL = 0
	cfg.Storage = "memory"
	cfg.Provider = config.ProviderTrain
	if err := cfg.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return cfg
}

func build(t *testing.T, cfg *config.Config) *setup.App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := setup.Build(context.Background(), cfg, logger, metrics.New(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

// seed inserts historyHours of hourly readings ending one hour ago.
func seed(t *testing.T, app *setup.App) {
	t.Helper()
	ctx := context.Background()
	end := time.Now().UTC().Truncate(time.Hour)

	for i := historyHours; i >= 1; i-- {
		ts := end.Add(-time.Duration(i) * time.Hour)
		x := float64(historyHours - i)
		if _, err := app.Pool.Exec(ctx,
			`INSERT INTO weather_data (ts, temperature, humidity, wind_speed) VALUES ($1, $2, $3, $4)`,
			ts, 28+0.1*x, 70-0.2*x, 3.5); err != nil {
			t.Fatalf("insert weather: %v", err)
		}
		if _, err := app.Pool.Exec(ctx,
			`INSERT INTO aqicn_data (ts, pm25, pm10, aqi_score) VALUES ($1, $2, $3, $4)`,
			ts, 10+x, 20+2*x, 50+int(x)); err != nil {
			t.Fatalf("insert aqicn: %v", err)
		}
		if _, err := app.Pool.Exec(ctx,
			`INSERT INTO sensor_data (ts, temperature, humidity, pm25, pm10) VALUES ($1, $2, $3, $4, $5)`,
			ts, 25+0.05*x, 60-0.1*x, 8+int(x)/2, 15+int(x)); err != nil {
			t.Fatalf("insert sensor: %v", err)
		}
	}
}

func newServer(t *testing.T, app *setup.App) *httptest.Server {
	t.Helper()
	mux := router.SetupRoutes(router.Deps{
		Forecaster: app.Service,
		Archive: router.Archive{
			Sensor:  app.Archive.Sensor,
			Weather: app.Archive.Weather,
			AQICN:   app.Archive.AQICN,
		},
		Health:  app.Ping,
		Timeout: 30 * time.Second,
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// TestPostgresForecastE2E seeds a real archive and serves forecasts and
// archive reads through the router.
func TestPostgresForecastE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	app := build(t, newConfig(t, setupPostgres(t)))
	seed(t, app)
	srv := newServer(t, app)

	if code := getJSON(t, srv.URL+"/healthz", nil); code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", code)
	}

	for _, v := range []string{forecast.VariantOutdoorBaseline, forecast.VariantOutdoor, forecast.VariantIndoorFull, forecast.VariantPM25ARIMA} {
		t.Run(v, func(t *testing.T) {
			var body struct {
				Variant  string           `json:"variant"`
				Forecast []map[string]any `json:"forecast"`
			}
			if code := getJSON(t, srv.URL+"/forecast/"+v+"?hours=3", &body); code != http.StatusOK {
				t.Fatalf("GET /forecast/%s = %d, want 200", v, code)
			}
			if body.Variant != v {
				t.Errorf("variant = %q, want %q", body.Variant, v)
			}
			if len(body.Forecast) != 3 {
				t.Errorf("forecast points = %d, want 3", len(body.Forecast))
			}
		})
	}

	var latest archive.AQICNRecord
	if code := getJSON(t, srv.URL+"/aqicn/latest", &latest); code != http.StatusOK {
		t.Fatalf("GET /aqicn/latest = %d, want 200", code)
	}
	if latest.AQIScore != 50+historyHours-1 {
		t.Errorf("latest aqi_score = %d, want %d", latest.AQIScore, 50+historyHours-1)
	}

	var dates []string
	if code := getJSON(t, srv.URL+"/sensor/dates", &dates); code != http.StatusOK || len(dates) == 0 {
		t.Errorf("GET /sensor/dates = %d, %v", code, dates)
	}

	if code := getJSON(t, srv.URL+"/weather/999999", nil); code != http.StatusNotFound {
		t.Errorf("GET /weather/999999 = %d, want 404", code)
	}
}

// TestRedisArtifactRoundTrip trains into Redis with one runtime and serves
// the artifact from another, as the trainer and API processes do.
func TestRedisArtifactRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dsn := setupPostgres(t)
	redisAddr := setupRedis(t)

	trainCfg := newConfig(t, dsn)
	trainCfg.Storage = "redis"
	trainCfg.RedisAddr = redisAddr
	trainer := build(t, trainCfg)
	seed(t, trainer)

	serveCfg := newConfig(t, dsn)
	serveCfg.Storage = "redis"
	serveCfg.RedisAddr = redisAddr
	serveCfg.Provider = config.ProviderArtifact
	serveCfg.Migrate = false
	server := build(t, serveCfg)
	srv := newServer(t, server)

	if code := getJSON(t, srv.URL+"/forecast/"+forecast.VariantOutdoorBaseline, nil); code != http.StatusServiceUnavailable {
		t.Errorf("forecast before training = %d, want 503", code)
	}

	id, _, err := trainer.Service.Train(context.Background(), forecast.VariantOutdoorBaseline, trainer.Store)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if id == "" {
		t.Fatal("Train() returned an empty artifact id")
	}

	var body struct {
		Model    string           `json:"model"`
		Forecast []map[string]any `json:"forecast"`
	}
	if code := getJSON(t, srv.URL+"/forecast/"+forecast.VariantOutdoorBaseline+"?hours=4", &body); code != http.StatusOK {
		t.Fatalf("forecast after training = %d, want 200", code)
	}
	if len(body.Forecast) != 4 {
		t.Errorf("forecast points = %d, want 4", len(body.Forecast))
	}
}
