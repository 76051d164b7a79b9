package volatility

import (
	"context"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/options-board/src/eventmodels"
)

// clampFloor is the minimum number of returns the clamp-window policy will
// accept before declaring the estimate undefined.
const clampFloor = 10

// CloseReader is the slice of the price-series store the estimator needs.
type CloseReader interface {
	ReadCloses(ctx context.Context, underlying string, limit int) ([]eventmodels.ClosePoint, error)
}

// Estimator computes the annualized rolling volatility of minute log
// returns. Window extraction uses cumulative sum / sum-of-squares arrays so
// the final window costs two array differences instead of a fresh pass.
//
// Two window policies exist: the default strict policy declares the estimate
// undefined unless a full window of returns is available; the clamp policy
// shrinks the window to the available returns with a floor of clampFloor.
// The policy is fixed by configuration, never mixed per call.
type Estimator struct {
	store              CloseReader
	window             int
	clampWindow        bool
	tradingDaysPerYear int
	minutesPerDay      int
}

func NewEstimator(store CloseReader, window int, clampWindow bool, tradingDaysPerYear, minutesPerDay int) *Estimator {
	return &Estimator{
		store:              store,
		window:             window,
		clampWindow:        clampWindow,
		tradingDaysPerYear: tradingDaysPerYear,
		minutesPerDay:      minutesPerDay,
	}
}

// Estimate returns the volatility state for the underlying as of now.
// Insufficient history yields an Undefined state, not an error; errors are
// reserved for store failures.
func (e *Estimator) Estimate(ctx context.Context, underlying string) (eventmodels.VolatilityState, error) {
	undefined := eventmodels.VolatilityState{
		Underlying: underlying,
		AsOf:       time.Now(),
		Undefined:  true,
	}

	closes, err := e.store.ReadCloses(ctx, underlying, e.window+1)
	if err != nil {
		return undefined, fmt.Errorf("Estimate: failed to read closes for %s: %w", underlying, err)
	}

	if len(closes) < 2 {
		log.Debugf("Estimate: no usable close series for %s (%d points)", underlying, len(closes))
		return undefined, nil
	}

	returns := logReturns(closes)

	window := e.window
	if len(returns) < window {
		if !e.clampWindow {
			log.Debugf("Estimate: %s has %d returns, strict policy needs %d", underlying, len(returns), window)
			return undefined, nil
		}
		if len(returns) < clampFloor {
			log.Debugf("Estimate: %s has %d returns, clamp floor is %d", underlying, len(returns), clampFloor)
			return undefined, nil
		}
		window = len(returns)
	}

	mean, variance := lastWindowMoments(returns, window)
	annualized := math.Sqrt(variance) * math.Sqrt(float64(e.tradingDaysPerYear*e.minutesPerDay))
	log.Debugf("Estimate: %s window=%d mean=%.6g annualized=%.4f", underlying, window, mean, annualized)

	return eventmodels.VolatilityState{
		Underlying:    underlying,
		AsOf:          closes[len(closes)-1].Timestamp,
		AnnualizedVol: round4(annualized),
	}, nil
}

func logReturns(closes []eventmodels.ClosePoint) []float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, math.Log(closes[i].Close/closes[i-1].Close))
	}

	return returns
}

// lastWindowMoments extracts the mean and variance of the final window of
// returns from prefix arrays. Variance is clamped at zero to absorb
// floating-point round-off.
func lastWindowMoments(returns []float64, window int) (mean, variance float64) {
	cumsum := make([]float64, len(returns)+1)
	cumsum2 := make([]float64, len(returns)+1)
	for i, r := range returns {
		cumsum[i+1] = cumsum[i] + r
		cumsum2[i+1] = cumsum2[i] + r*r
	}

	n := float64(window)
	last := len(returns)
	first := last - window

	mean = (cumsum[last] - cumsum[first]) / n
	variance = (cumsum2[last]-cumsum2[first])/n - mean*mean
	if variance < 0 {
		variance = 0
	}

	return mean, variance
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
