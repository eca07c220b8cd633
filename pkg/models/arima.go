package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/Phantawat/BreatheEasy/pkg/timeseries"
)

// ARIMAModel is a univariate ARIMA(p,d,q) forecaster. Unlike the one-step
// predictors it forecasts the whole horizon in a single call: the ARMA
// recursion runs on the d-times differenced series with future shocks set
// to zero, and the result is integrated back onto the original scale.
//
//   - p: AutoRegressive order (how many past values to use)
//   - d: Differencing order (0=none, 1=linear trend, 2=quadratic; max 2)
//   - q: Moving Average order (how many past errors to use)
//
// It is safe for concurrent Forecast calls after Fit.
type ARIMAModel struct {
	column      string
	p, d, q     int
	nonNegative bool

	mu        sync.RWMutex
	trained   bool
	arCoeffs  []float64
	maCoeffs  []float64
	mean      float64   // mean of the differenced series
	tails     []float64 // last value of each differencing level 0..d-1
	lastDiffs []float64 // last p centered differenced values, oldest first
	lastErrs  []float64 // last q residuals, oldest first
	sigma     float64
}

// NewARIMAModel creates an ARIMA(p,d,q) model for column. nonNegative clamps
// forecasts at zero, as for concentrations.
func NewARIMAModel(column string, p, d, q int, nonNegative bool) (*ARIMAModel, error) {
	if column == "" {
		return nil, errors.New("column cannot be empty")
	}
	if p < 0 || q < 0 {
		return nil, fmt.Errorf("orders must be >= 0, got p=%d q=%d", p, q)
	}
	if d < 0 || d > 2 {
		return nil, fmt.Errorf("d must be in range [0, 2], got %d", d)
	}
	return &ARIMAModel{column: column, p: p, d: d, q: q, nonNegative: nonNegative}, nil
}

// Name returns the model name with ARIMA orders.
func (m *ARIMAModel) Name() string {
	return fmt.Sprintf("arima(%d,%d,%d)", m.p, m.d, m.q)
}

// Column returns the forecast column.
func (m *ARIMAModel) Column() string {
	return m.column
}

// MinPoints is the shortest series Fit accepts.
func (m *ARIMAModel) MinPoints() int {
	return max(m.p+m.d, m.q+m.d, 10)
}

// Fit estimates the model on series:
//  1. differences the series d times
//  2. centers it on its mean
//  3. fits AR coefficients with Yule-Walker / Levinson-Durbin
//  4. fits MA coefficients from the residual autocorrelations
//  5. keeps the state the recursion and the integration need
func (m *ARIMAModel) Fit(ctx context.Context, series []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(series) < m.MinPoints() {
		return timeseries.Insufficient(m.Name()+" fit", len(series), m.MinPoints())
	}
	if !finite(series) {
		return timeseries.Malformed(m.Name()+" fit", "series contains non-finite values")
	}

	tails := make([]float64, m.d)
	level := slices.Clone(series)
	for k := range m.d {
		tails[k] = level[len(level)-1]
		level = difference(level, 1)
	}

	mean := stat.Mean(level, nil)
	centered := make([]float64, len(level))
	for i, v := range level {
		centered[i] = v - mean
	}

	arCoeffs, err := fitAR(centered, m.p)
	if err != nil {
		return &timeseries.ModelFailure{Model: m.Name(), Op: "fit", Err: fmt.Errorf("AR coefficients: %w", err)}
	}
	maCoeffs := fitMA(computeResiduals(centered, arCoeffs, m.p), m.q)
	residuals := armaResiduals(centered, arCoeffs, maCoeffs)

	sigma := 0.0
	if len(residuals) > 1 {
		sigma = stat.StdDev(residuals, nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.trained = true
	m.arCoeffs = arCoeffs
	m.maCoeffs = maCoeffs
	m.mean = mean
	m.tails = tails
	m.lastDiffs = lastN(centered, m.p)
	m.lastErrs = lastN(residuals, m.q)
	m.sigma = sigma
	return nil
}

// Forecast returns the next steps values after the fitted series.
func (m *ARIMAModel) Forecast(ctx context.Context, steps int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if steps < 1 {
		return nil, fmt.Errorf("steps must be >= 1, got %d", steps)
	}

	m.mu.RLock()
	if !m.trained {
		m.mu.RUnlock()
		return nil, &timeseries.ModelFailure{Model: m.Name(), Op: "forecast", Err: ErrNotFitted}
	}
	ar := slices.Clone(m.arCoeffs)
	ma := slices.Clone(m.maCoeffs)
	diffs := slices.Clone(m.lastDiffs)
	errs := slices.Clone(m.lastErrs)
	tails := slices.Clone(m.tails)
	mean := m.mean
	m.mu.RUnlock()

	out := make([]float64, steps)
	for t := range steps {
		pred := 0.0
		for i, phi := range ar {
			if j := len(diffs) - 1 - i; j >= 0 {
				pred += phi * diffs[j]
			}
		}
		for i, theta := range ma {
			if j := len(errs) - 1 - i; j >= 0 {
				pred += theta * errs[j]
			}
		}
		out[t] = pred + mean
		if len(diffs) > 0 {
			diffs = append(diffs[1:], pred)
		}
		if len(errs) > 0 {
			errs = append(errs[1:], 0)
		}
	}

	for k := len(tails) - 1; k >= 0; k-- {
		acc := tails[k]
		for t := range out {
			acc += out[t]
			out[t] = acc
		}
	}

	for t, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &timeseries.ModelFailure{Model: m.Name(), Op: "forecast", Err: fmt.Errorf("non-finite value at step %d", t+1)}
		}
		if m.nonNegative && v < 0 {
			out[t] = 0
		}
	}
	return out, nil
}

// ResidualStdDev returns the in-sample residual standard deviation.
func (m *ARIMAModel) ResidualStdDev() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sigma
}

// difference applies d-order differencing.
func difference(series []float64, d int) []float64 {
	if d == 0 || len(series) == 0 {
		return slices.Clone(series)
	}
	result := make([]float64, len(series)-1)
	for i := 0; i < len(series)-1; i++ {
		result[i] = series[i+1] - series[i]
	}
	if d > 1 {
		return difference(result, d-1)
	}
	return result
}

// fitAR estimates AR coefficients using Yule-Walker equations with Levinson-Durbin.
func fitAR(centered []float64, p int) ([]float64, error) {
	if p == 0 {
		return []float64{}, nil
	}
	if stat.Variance(centered, nil) < 1e-10 {
		return make([]float64, p), nil
	}

	acf := make([]float64, p+1)
	for k := 0; k <= p; k++ {
		acf[k] = autocorr(centered, k)
	}
	return levinsonDurbin(acf, p)
}

// autocorr computes the sample autocorrelation at lag.
func autocorr(series []float64, lag int) float64 {
	if lag < 0 || lag >= len(series) {
		return 0
	}
	mean := stat.Mean(series, nil)

	var c0, ck float64
	for i := range series {
		c0 += (series[i] - mean) * (series[i] - mean)
	}
	for i := 0; i < len(series)-lag; i++ {
		ck += (series[i] - mean) * (series[i+lag] - mean)
	}
	if c0 == 0 {
		return 0
	}
	return ck / c0
}

// levinsonDurbin solves the Yule-Walker equations.
func levinsonDurbin(acf []float64, p int) ([]float64, error) {
	phi := make([][]float64, p+1)
	for i := range phi {
		phi[i] = make([]float64, p+1)
	}

	v := acf[0]
	for k := 1; k <= p; k++ {
		num := acf[k]
		for j := 1; j < k; j++ {
			num -= phi[k-1][j] * acf[k-j]
		}
		if v == 0 {
			return nil, errors.New("numerical instability in Levinson-Durbin")
		}
		phi[k][k] = num / v
		for j := 1; j < k; j++ {
			phi[k][j] = phi[k-1][j] - phi[k][k]*phi[k-1][k-j]
		}
		v *= 1 - phi[k][k]*phi[k][k]
		if v < 0 {
			return nil, errors.New("negative variance in Levinson-Durbin")
		}
	}

	coeffs := make([]float64, p)
	for i := range p {
		coeffs[i] = phi[p][i+1]
	}
	return coeffs, nil
}

// computeResiduals returns the AR-only one-step errors used to seed MA fitting.
func computeResiduals(centered []float64, arCoeffs []float64, p int) []float64 {
	if len(centered) <= p {
		return []float64{}
	}
	residuals := make([]float64, len(centered)-p)
	for t := p; t < len(centered); t++ {
		var arPred float64
		for i := 0; i < p && i < len(arCoeffs); i++ {
			arPred += arCoeffs[i] * centered[t-1-i]
		}
		residuals[t-p] = centered[t] - arPred
	}
	return residuals
}

// fitMA approximates MA coefficients by the residual autocorrelations,
// shrunk inside the unit interval to keep the recursion invertible.
func fitMA(residuals []float64, q int) []float64 {
	coeffs := make([]float64, q)
	for i := 0; i < q && i < len(residuals); i++ {
		coeffs[i] = autocorr(residuals, i+1)
		if math.Abs(coeffs[i]) > 0.9 {
			coeffs[i] = math.Copysign(0.9, coeffs[i])
		}
	}
	return coeffs
}

// armaResiduals runs the full ARMA recursion over centered and returns the
// one-step errors, with pre-sample values and errors taken as zero.
func armaResiduals(centered, ar, ma []float64) []float64 {
	errs := make([]float64, len(centered))
	for t := range centered {
		pred := 0.0
		for i, phi := range ar {
			if t-1-i >= 0 {
				pred += phi * centered[t-1-i]
			}
		}
		for j, theta := range ma {
			if t-1-j >= 0 {
				pred += theta * errs[t-1-j]
			}
		}
		errs[t] = centered[t] - pred
	}
	return errs
}

func lastN(series []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if len(series) >= n {
		copy(out, series[len(series)-n:])
	} else {
		copy(out[n-len(series):], series)
	}
	return out
}
