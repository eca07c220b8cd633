package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Phantawat/BreatheEasy/pkg/adapters"
	"github.com/Phantawat/BreatheEasy/pkg/features"
	"github.com/Phantawat/BreatheEasy/pkg/models"
	"github.com/Phantawat/BreatheEasy/pkg/storage"
	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// ErrUnknownVariant is returned for a variant name the service does not serve.
var ErrUnknownVariant = errors.New("unknown forecast variant")

// Recorder receives per-stage timings and failures. cmd/forecaster/metrics
// implements it with Prometheus.
type Recorder interface {
	ObserveStage(variant, stage string, seconds float64)
	RecordError(component, reason string)
}

// Result is one assembled forecast.
type Result struct {
	Variant     string
	Model       string
	TimeKey     string
	GeneratedAt time.Time
	Forecast    *Forecast
}

// Service produces forecasts per request: query history, obtain a
// predictor, roll it out, assemble. Nothing is shared between calls except
// what the source and provider share themselves.
type Service struct {
	source   adapters.Source
	engine   *Engine
	variants map[string]Variant
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option { return func(s *Service) { s.tracer = t } }

// WithClock replaces time.Now for GeneratedAt.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService validates variants and creates a service.
func NewService(source adapters.Source, engine *Engine, variants []Variant, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, errors.New("source cannot be nil")
	}
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	s := &Service{
		source:   source,
		engine:   engine,
		variants: make(map[string]Variant, len(variants)),
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/Phantawat/BreatheEasy/pkg/forecast"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, v := range variants {
		if err := v.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.variants[v.Name]; dup {
			return nil, fmt.Errorf("duplicate variant %s", v.Name)
		}
		s.variants[v.Name] = v
	}
	return s, nil
}

// Variants lists served variant names, sorted.
func (s *Service) Variants() []string {
	names := make([]string, 0, len(s.variants))
	for name := range s.variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Variant returns the named variant.
func (s *Service) Variant(name string) (Variant, bool) {
	v, ok := s.variants[name]
	return v, ok
}

func (s *Service) lookup(name string) (Variant, error) {
	v, ok := s.variants[name]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return v, nil
}

// Forecast produces horizon steps of the named variant.
func (s *Service) Forecast(ctx context.Context, name string, horizon int) (res *Result, err error) {
	v, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if horizon < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidHorizon, horizon)
	}

	ctx, span := s.tracer.Start(ctx, "forecast",
		trace.WithAttributes(attribute.String("variant", v.Name), attribute.Int("horizon", horizon)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.record("forecast", Reason(err))
		}
		span.End()
	}()

	start := time.Now()
	history, sourceDuration, err := s.history(ctx, v)
	if err != nil {
		return nil, err
	}

	var seq *Sequence
	var model string
	var provideDuration, rolloutDuration time.Duration
	if v.Direct() {
		seq, model, rolloutDuration, err = s.direct(ctx, v, history, horizon)
	} else {
		seq, model, provideDuration, rolloutDuration, err = s.recursive(ctx, v, history, horizon)
	}
	if err != nil {
		return nil, err
	}

	res = &Result{
		Variant:     v.Name,
		Model:       model,
		TimeKey:     v.TimeKey,
		GeneratedAt: s.now().UTC(),
		Forecast:    Assemble(seq),
	}

	totalDuration := time.Since(start)
	s.observe(v.Name, "total", totalDuration)
	s.logger.Info("forecast complete",
		"variant", v.Name,
		"model", model,
		"history_rows", history.Len(),
		"horizon", horizon,
		"source_ms", sourceDuration.Milliseconds(),
		"provide_ms", provideDuration.Milliseconds(),
		"rollout_ms", rolloutDuration.Milliseconds(),
		"total_ms", totalDuration.Milliseconds(),
	)
	return res, nil
}

// History returns the named variant's hourly history table.
func (s *Service) History(ctx context.Context, name string) (*timeseries.Table, error) {
	v, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	t, _, err := s.history(ctx, v)
	return t, err
}

func (s *Service) history(ctx context.Context, v Variant) (*timeseries.Table, time.Duration, error) {
	ctx, span := s.tracer.Start(ctx, "source.query", trace.WithAttributes(attribute.String("dataset", v.Dataset)))
	defer span.End()

	start := time.Now()
	t, err := s.source.Query(ctx, v.Dataset)
	if err != nil {
		s.record("source", "query_failed")
		return nil, 0, fmt.Errorf("query %s: %w", v.Dataset, err)
	}
	if len(v.Columns) > 0 {
		if t, err = t.Select(v.Columns...); err != nil {
			return nil, 0, err
		}
	}
	if err := t.Validate(s.engine.Interval()); err != nil {
		return nil, 0, err
	}
	if err := t.CheckFinite(); err != nil {
		return nil, 0, fmt.Errorf("%s history: %w", v.Dataset, err)
	}
	d := time.Since(start)
	s.observe(v.Name, "source", d)

	span.SetAttributes(attribute.Int("rows", t.Len()))
	s.logger.Debug("queried history",
		"source", s.source.Name(),
		"dataset", v.Dataset,
		"rows", t.Len(),
		"duration_ms", d.Milliseconds(),
	)
	return t, d, nil
}

func (s *Service) recursive(ctx context.Context, v Variant, history *timeseries.Table, horizon int) (*Sequence, string, time.Duration, time.Duration, error) {
	if history.Len() < v.Lags+1 {
		return nil, "", 0, 0, timeseries.Insufficient("forecast "+v.Name, history.Len(), v.Lags+1)
	}

	pctx, pspan := s.tracer.Start(ctx, "predictor.provide")
	start := time.Now()
	pred, err := v.Provider.Provide(pctx, history)
	provideDuration := time.Since(start)
	pspan.End()
	if err != nil {
		s.record("provider", Reason(err))
		return nil, "", 0, 0, fmt.Errorf("provide predictor: %w", err)
	}
	s.observe(v.Name, "provide", provideDuration)

	rows, err := history.Tail(v.Lags)
	if err != nil {
		return nil, "", 0, 0, err
	}
	window, err := timeseries.NewWindow(history.Schema, rows)
	if err != nil {
		return nil, "", 0, 0, err
	}

	rctx, rspan := s.tracer.Start(ctx, "rollout",
		trace.WithAttributes(attribute.String("model", pred.Name()), attribute.Int("horizon", horizon)))
	start = time.Now()
	seq, err := s.engine.Rollout(rctx, pred, window, horizon)
	rolloutDuration := time.Since(start)
	rspan.End()
	if err != nil {
		s.record("rollout", Reason(err))
		return nil, "", 0, 0, err
	}
	s.observe(v.Name, "rollout", rolloutDuration)
	return seq, pred.Name(), provideDuration, rolloutDuration, nil
}

func (s *Service) direct(ctx context.Context, v Variant, history *timeseries.Table, horizon int) (*Sequence, string, time.Duration, error) {
	column := v.Targets[0]
	series, err := history.Column(column)
	if err != nil {
		return nil, "", 0, err
	}
	m, err := models.NewARIMAModel(column, v.ARIMA.P, v.ARIMA.D, v.ARIMA.Q, v.ARIMA.NonNegative)
	if err != nil {
		return nil, "", 0, err
	}

	ctx, span := s.tracer.Start(ctx, "arima", trace.WithAttributes(attribute.String("model", m.Name())))
	defer span.End()

	start := time.Now()
	if err := m.Fit(ctx, series); err != nil {
		s.record("arima", Reason(err))
		return nil, "", 0, err
	}
	values, err := m.Forecast(ctx, horizon)
	if err != nil {
		s.record("arima", Reason(err))
		return nil, "", 0, err
	}
	d := time.Since(start)
	s.observe(v.Name, "direct", d)

	seq := &Sequence{
		Origin:   history.Last().Timestamp,
		Interval: s.engine.Interval(),
		Targets:  []string{column},
		Values:   make([][]float64, len(values)),
	}
	for i, x := range values {
		seq.Values[i] = []float64{x}
	}
	return seq, m.Name(), d, nil
}

// Dataset builds the named variant's supervised training set from current
// history.
func (s *Service) Dataset(ctx context.Context, name string) (*features.Dataset, error) {
	v, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if v.Direct() {
		return nil, fmt.Errorf("variant %s is not trainable", v.Name)
	}
	history, _, err := s.history(ctx, v)
	if err != nil {
		return nil, err
	}
	return features.BuildDataset(history, v.Lags, v.Targets)
}

// Train fits a fresh predictor for the named variant on current history and
// saves it to store as the variant's latest artifact.
func (s *Service) Train(ctx context.Context, name string, store storage.Store) (string, models.Predictor, error) {
	v, err := s.lookup(name)
	if err != nil {
		return "", nil, err
	}
	if v.Direct() || v.Factory == nil {
		return "", nil, fmt.Errorf("variant %s is not trainable", v.Name)
	}

	ds, err := s.Dataset(ctx, name)
	if err != nil {
		return "", nil, err
	}
	if ds.Len() == 0 {
		return "", nil, timeseries.Insufficient("train "+v.Name, 0, 1)
	}

	pred, err := v.Factory()
	if err != nil {
		return "", nil, err
	}
	start := time.Now()
	if err := pred.Fit(ctx, ds); err != nil {
		s.record("trainer", Reason(err))
		return "", nil, err
	}
	s.observe(v.Name, "fit", time.Since(start))

	id, err := models.Save(ctx, store, v.Name, pred, s.now().UTC())
	if err != nil {
		s.record("trainer", "save_failed")
		return "", nil, err
	}
	s.logger.Info("trained predictor",
		"variant", v.Name,
		"model", pred.Name(),
		"artifact", id,
		"pairs", ds.Len(),
		"fit_ms", time.Since(start).Milliseconds(),
	)
	return id, pred, nil
}

func (s *Service) observe(variant, stage string, d time.Duration) {
	if s.recorder != nil {
		s.recorder.ObserveStage(variant, stage, d.Seconds())
	}
}

func (s *Service) record(component, reason string) {
	if s.recorder != nil {
		s.recorder.RecordError(component, reason)
	}
}

// Reason classifies err for metrics labels.
func Reason(err error) string {
	var de *timeseries.DataError
	var sm *timeseries.SchemaMismatchError
	var mf *timeseries.ModelFailure
	switch {
	case errors.Is(err, timeseries.ErrInsufficientData):
		return "insufficient_data"
	case errors.As(err, &de):
		return "malformed_data"
	case errors.As(err, &sm):
		return "schema_mismatch"
	case errors.As(err, &mf):
		return "model_failure"
	case errors.Is(err, models.ErrArtifactNotFound):
		return "artifact_not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
