// Package router configures the HTTP routes of the BreatheEasy API.
//
// Routes configured:
//   - GET /                                  - Welcome message
//   - GET /forecast                          - Served forecast variants
//   - GET /forecast/{variant}?hours=&format= - Multi-step forecast
//   - GET /{kind}, /{kind}/latest, /{kind}/monthly, /{kind}/dates,
//     /{kind}/{id}, /{kind}/date/{date}, /{kind}/date/{start}/{end}
//     for kind in sensor, weather and aqicn - Archived readings
//   - GET /healthz                           - Health check endpoint
//   - GET /metrics                           - Prometheus metrics endpoint
//
// Query parameters are validated before any forecast work starts. Forecast
// errors map onto status codes by kind: bad input 400, insufficient or
// malformed history 422, model failures 502, missing artifacts 503, schema
// mismatches and everything else 500.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Phantawat/BreatheEasy/pkg/archive"
	"github.com/Phantawat/BreatheEasy/pkg/forecast"
	"github.com/Phantawat/BreatheEasy/pkg/httpx"
	"github.com/Phantawat/BreatheEasy/pkg/models"
	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// WelcomeMessage is served at the root path.
const WelcomeMessage = "Welcome to the Air Quality Monitoring API"

// DefaultHours is the horizon used when the hours parameter is absent.
const DefaultHours = 6

var validate = validator.New()

// Forecaster is the part of forecast.Service the router uses.
type Forecaster interface {
	Forecast(ctx context.Context, variant string, horizon int) (*forecast.Result, error)
	Variants() []string
}

// Archive groups the readers behind the archive routes. Nil readers are not
// routed.
type Archive struct {
	Sensor  archive.Reader[archive.SensorRecord]
	Weather archive.Reader[archive.WeatherRecord]
	AQICN   archive.Reader[archive.AQICNRecord]
}

// Deps holds everything the routes call into.
type Deps struct {
	Forecaster Forecaster
	Archive    Archive
	// Health, when set, backs /healthz; a failing check yields 503.
	Health  func(context.Context) error
	Metrics http.Handler
	Timeout time.Duration
	Logger  *slog.Logger
}

// SetupRoutes configures the HTTP endpoints.
func SetupRoutes(d Deps) *http.ServeMux {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Logger, http.StatusOK, map[string]string{"message": WelcomeMessage})
	})

	if d.Health != nil {
		mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(d.Health))
	} else {
		mux.Handle("GET /healthz", httpx.HealthHandler())
	}

	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	if d.Forecaster != nil {
		mux.HandleFunc("GET /forecast", handleListVariants(d))
		mux.HandleFunc("GET /forecast/{variant}", handleForecast(d))
	}

	if d.Archive.Sensor != nil {
		registerArchive(mux, d, "sensor", d.Archive.Sensor)
	}
	if d.Archive.Weather != nil {
		registerArchive(mux, d, "weather", d.Archive.Weather)
	}
	if d.Archive.AQICN != nil {
		registerArchive(mux, d, "aqicn", d.Archive.AQICN)
	}

	return mux
}

// forecastRequest is the validated form of a forecast call.
type forecastRequest struct {
	Variant string `validate:"required"`
	Hours   int    `validate:"min=1,max=24"`
	Format  string `validate:"oneof=records keyed"`
}

// ForecastResponse is the body of a successful forecast call.
type ForecastResponse struct {
	Variant     string `json:"variant"`
	Model       string `json:"model"`
	GeneratedAt string `json:"generatedAt"`
	Forecast    any    `json:"forecast"`
}

func parseForecastRequest(r *http.Request) (forecastRequest, error) {
	req := forecastRequest{
		Variant: r.PathValue("variant"),
		Hours:   DefaultHours,
		Format:  forecast.FormatRecords,
	}

	q := r.URL.Query()
	if raw := q.Get("hours"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil {
			return req, errors.New("hours must be an integer")
		}
		req.Hours = h
	}
	if f := q.Get("format"); f != "" {
		req.Format = f
	}

	if err := validate.Struct(req); err != nil {
		return req, err
	}
	return req, nil
}

func handleListVariants(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Logger, http.StatusOK, map[string][]string{"variants": d.Forecaster.Variants()})
	}
}

func handleForecast(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseForecastRequest(r)
		if err != nil {
			httpx.WriteErrorReason(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if !slices.Contains(d.Forecaster.Variants(), req.Variant) {
			httpx.WriteErrorReason(w, http.StatusBadRequest, "unknown_variant", "unknown forecast variant "+strconv.Quote(req.Variant))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), d.Timeout)
		defer cancel()

		res, err := d.Forecaster.Forecast(ctx, req.Variant, req.Hours)
		if err != nil {
			status := StatusFor(err)
			if status >= http.StatusInternalServerError {
				d.Logger.Error("forecast failed", "variant", req.Variant, "hours", req.Hours, "error", err)
			}
			message := err.Error()
			if status == http.StatusInternalServerError {
				message = "internal server error"
			}
			httpx.WriteErrorReason(w, status, forecast.Reason(err), message)
			return
		}

		writeJSON(w, d.Logger, http.StatusOK, ForecastResponse{
			Variant:     res.Variant,
			Model:       res.Model,
			GeneratedAt: res.GeneratedAt.Format(time.RFC3339),
			Forecast:    res.Forecast.Render(req.Format, res.TimeKey),
		})
	}
}

// StatusFor maps a forecast error to its HTTP status code.
func StatusFor(err error) int {
	var de *timeseries.DataError
	var sm *timeseries.SchemaMismatchError
	var mf *timeseries.ModelFailure
	switch {
	case errors.Is(err, forecast.ErrUnknownVariant), errors.Is(err, forecast.ErrInvalidHorizon):
		return http.StatusBadRequest
	case errors.As(err, &de):
		return http.StatusUnprocessableEntity
	case errors.As(err, &sm):
		return http.StatusInternalServerError
	case errors.As(err, &mf):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrArtifactNotFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func registerArchive[T any](mux *http.ServeMux, d Deps, kind string, rd archive.Reader[T]) {
	base := "GET /" + kind

	mux.HandleFunc(base, archiveList(d, kind, rd.All))
	mux.HandleFunc(base+"/monthly", archiveList(d, kind, rd.Monthly))

	mux.HandleFunc(base+"/latest", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d.Timeout)
		defer cancel()
		rec, found, err := rd.Latest(ctx)
		writeOne(w, d.Logger, kind, rec, found, err)
	})

	mux.HandleFunc(base+"/dates", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d.Timeout)
		defer cancel()
		dates, err := rd.Dates(ctx)
		writeList(w, d.Logger, kind, dates, err)
	})

	mux.HandleFunc(base+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		raw := r.PathValue("id")
		if err := validate.Var(raw, "required,number"); err != nil {
			httpx.WriteErrorReason(w, http.StatusBadRequest, "invalid_request", "id must be an integer")
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			httpx.WriteErrorReason(w, http.StatusBadRequest, "invalid_request", "id must be a positive integer")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d.Timeout)
		defer cancel()
		rec, found, err := rd.ByID(ctx, id)
		writeOne(w, d.Logger, kind, rec, found, err)
	})

	mux.HandleFunc(base+"/date/{date}", func(w http.ResponseWriter, r *http.Request) {
		day, err := parseDate(r.PathValue("date"))
		if err != nil {
			httpx.WriteErrorReason(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d.Timeout)
		defer cancel()
		recs, err := rd.ByDate(ctx, day)
		writeList(w, d.Logger, kind, recs, err)
	})

	mux.HandleFunc(base+"/date/{start}/{end}", func(w http.ResponseWriter, r *http.Request) {
		start, err := parseDate(r.PathValue("start"))
		if err != nil {
			httpx.WriteErrorReason(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		end, err := parseDate(r.PathValue("end"))
		if err != nil {
			httpx.WriteErrorReason(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d.Timeout)
		defer cancel()
		recs, err := rd.ByRange(ctx, start, end)
		if errors.Is(err, archive.ErrInvalidRange) {
			httpx.WriteErrorReason(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeList(w, d.Logger, kind, recs, err)
	})
}

func parseDate(raw string) (time.Time, error) {
	if err := validate.Var(raw, "required,datetime="+archive.DateLayout); err != nil {
		return time.Time{}, errors.New("invalid date " + strconv.Quote(raw) + ": want YYYY-MM-DD")
	}
	return archive.ParseDate(raw)
}

func archiveList[T any](d Deps, kind string, list func(context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d.Timeout)
		defer cancel()
		recs, err := list(ctx)
		writeList(w, d.Logger, kind, recs, err)
	}
}

func writeList[T any](w http.ResponseWriter, logger *slog.Logger, kind string, recs []T, err error) {
	if err != nil {
		logger.Error("archive query failed", "kind", kind, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(recs) == 0 {
		httpx.WriteErrorReason(w, http.StatusNotFound, "not_found", "no "+kind+" data found")
		return
	}
	writeJSON(w, logger, http.StatusOK, recs)
}

func writeOne[T any](w http.ResponseWriter, logger *slog.Logger, kind string, rec T, found bool, err error) {
	if err != nil {
		logger.Error("archive query failed", "kind", kind, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found {
		httpx.WriteErrorReason(w, http.StatusNotFound, "not_found", "no "+kind+" data found")
		return
	}
	writeJSON(w, logger, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	if err := httpx.WriteJSON(w, status, v); err != nil {
		logger.Error("failed to write JSON response", "error", err)
	}
}
