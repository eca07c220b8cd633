package forecast

import (
	"fmt"

	"github.com/Phantawat/BreatheEasy/pkg/adapters"
	"github.com/Phantawat/BreatheEasy/pkg/models"
	"github.com/Phantawat/BreatheEasy/pkg/storage"
)

// Variant names served by the default catalog.
const (
	VariantOutdoor         = "outdoor"
	VariantOutdoorBaseline = "outdoor-baseline"
	VariantIndoorFull      = "indoor-full"
	VariantIndoorBasic     = "indoor-basic"
	VariantIndoorSequence  = "indoor-sequence"
	VariantPM25ARIMA       = "pm25-arima"
)

// DefaultLags is the lag depth of every recursive variant.
const DefaultLags = 6

// ARIMASpec configures a direct ARIMA variant.
type ARIMASpec struct {
	P, D, Q     int
	NonNegative bool
}

// Variant describes one forecast the service can produce.
type Variant struct {
	Name    string
	Dataset string
	// Columns restricts the dataset to a subset, in order. Empty keeps all.
	Columns []string
	Targets []string
	Lags    int
	// TimeKey names the timestamp field in record-shaped output.
	TimeKey string

	// Factory builds an unfitted predictor for training.
	Factory models.Factory
	// Provider hands a fitted predictor to each call.
	Provider models.Provider

	// ARIMA, when set, makes this a direct variant that ignores Factory,
	// Provider and Lags.
	ARIMA *ARIMASpec
}

// Direct reports whether the variant bypasses the rollout engine.
func (v Variant) Direct() bool { return v.ARIMA != nil }

// TrainOnDemand returns v with a provider that fits a fresh predictor on
// each call's history.
func (v Variant) TrainOnDemand() Variant {
	if v.Direct() {
		return v
	}
	v.Provider = &models.TrainOnDemand{New: v.Factory, Lags: v.Lags, Targets: v.Targets}
	return v
}

// FromArtifacts returns v with a provider that loads the artifact id from
// store, or the variant's latest artifact when id is empty.
func (v Variant) FromArtifacts(store storage.Store, id string) Variant {
	if v.Direct() {
		return v
	}
	v.Provider = &models.ArtifactLoader{Store: store, Variant: v.Name, ID: id, Lags: v.Lags, Targets: v.Targets}
	return v
}

func (v Variant) validate() error {
	if v.Name == "" {
		return fmt.Errorf("variant name cannot be empty")
	}
	if _, err := adapters.Columns(v.Dataset); err != nil {
		return fmt.Errorf("variant %s: %w", v.Name, err)
	}
	if len(v.Targets) == 0 {
		return fmt.Errorf("variant %s: no targets", v.Name)
	}
	if v.TimeKey == "" {
		return fmt.Errorf("variant %s: time key cannot be empty", v.Name)
	}
	if v.Direct() {
		if len(v.Targets) != 1 {
			return fmt.Errorf("variant %s: direct variants forecast exactly one target", v.Name)
		}
		return nil
	}
	if v.Lags < 1 {
		return fmt.Errorf("variant %s: lags must be >= 1, got %d", v.Name, v.Lags)
	}
	if v.Provider == nil {
		return fmt.Errorf("variant %s: no predictor provider", v.Name)
	}
	return nil
}

// CatalogOptions parameterizes the default catalog.
type CatalogOptions struct {
	Lags     int
	Ensemble models.EnsembleConfig

	// SequenceEndpoint, when set, serves indoor-sequence from a remote
	// inference service instead of the local linear network.
	SequenceEndpoint string
	SequencePath     string
}

// DefaultCatalogOptions returns lag depth 6 and the default ensemble.
func DefaultCatalogOptions() CatalogOptions {
	return CatalogOptions{Lags: DefaultLags, Ensemble: models.DefaultEnsembleConfig()}
}

var (
	outdoorTargets = []string{"temperature", "humidity", "pm25", "pm10"}
	indoorTargets  = []string{"temp_in", "hum_in", "pm25_in", "pm10_in"}
)

// Catalog returns the default variants. Recursive variants carry a Factory
// but no Provider; callers pick a strategy with TrainOnDemand or
// FromArtifacts.
func Catalog(opts CatalogOptions) []Variant {
	lags := opts.Lags
	if lags < 1 {
		lags = DefaultLags
	}
	ensemble := func() (models.Predictor, error) { return models.NewEnsembleModel(opts.Ensemble) }

	indoorColumns, _ := adapters.Columns(adapters.DatasetIndoor)
	sequence := func() (models.Predictor, error) {
		var net models.Network = models.NewLinearNetwork(0)
		if opts.SequenceEndpoint != "" {
			net = models.NewRemoteNetwork(opts.SequenceEndpoint, opts.SequencePath, indoorColumns, indoorTargets)
		}
		return models.NewSequenceModel(indoorColumns, indoorTargets, net)
	}

	return []Variant{
		{
			Name: VariantOutdoor, Dataset: adapters.DatasetOutdoor,
			Targets: outdoorTargets, Lags: lags, TimeKey: "time", Factory: ensemble,
		},
		{
			Name: VariantOutdoorBaseline, Dataset: adapters.DatasetOutdoor,
			Targets: outdoorTargets, Lags: lags, TimeKey: "time",
			Factory: func() (models.Predictor, error) { return models.NewBaselineModel(), nil },
		},
		{
			Name: VariantIndoorFull, Dataset: adapters.DatasetIndoor,
			Targets: indoorTargets, Lags: lags, TimeKey: "time", Factory: ensemble,
		},
		{
			Name: VariantIndoorBasic, Dataset: adapters.DatasetIndoor, Columns: indoorTargets,
			Targets: indoorTargets, Lags: lags, TimeKey: "time", Factory: ensemble,
		},
		{
			Name: VariantIndoorSequence, Dataset: adapters.DatasetIndoor,
			Targets: indoorTargets, Lags: lags, TimeKey: "time", Factory: sequence,
		},
		{
			Name: VariantPM25ARIMA, Dataset: adapters.DatasetPM25,
			Targets: []string{"pm25"}, TimeKey: "timestamp",
			ARIMA: &ARIMASpec{P: 2, D: 1, Q: 2, NonNegative: true},
		},
	}
}
