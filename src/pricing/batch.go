package pricing

import (
	"math"

	"github.com/jiaming2012/options-board/src/eventmodels"
)

// BatchRow is one option in a batch pricing request. All rows of a batch
// share the same underlying but nothing else.
type BatchRow struct {
	Forward      float64
	Strike       float64
	TimeYears    float64
	Sigma        float64
	OptionType   eventmodels.OptionType
	OpenInterest float64
}

// Engine prices batches of options for one configuration of market
// conventions. It is safe for concurrent use.
type Engine struct {
	RiskFreeRate       float64
	TradingDaysPerYear int
	ContractMultiplier float64
}

func NewEngine(riskFreeRate float64, tradingDaysPerYear int, contractMultiplier float64) *Engine {
	return &Engine{
		RiskFreeRate:       riskFreeRate,
		TradingDaysPerYear: tradingDaysPerYear,
		ContractMultiplier: contractMultiplier,
	}
}

// PriceBatch evaluates Black-76 price and Greeks for every row. Invalid rows
// (non-finite or near-zero forward, strike, sigma or T) are masked to the
// degenerate result rather than skipped: the output always has the same
// length and order as the input.
func (e *Engine) PriceBatch(rows []BatchRow) []eventmodels.OptionAnalytics {
	out := make([]eventmodels.OptionAnalytics, len(rows))

	for i := range rows {
		row := rows[i]

		if !rowValid(row) {
			// a non-finite forward or strike poisons even the intrinsic
			// value; such rows stay all-zero
			if !finite(row.Forward) || !finite(row.Strike) {
				continue
			}

			discount := discountFor(e.RiskFreeRate, row.TimeYears)
			g := degenerateGreeks(row.Forward, row.Strike, discount, row.OptionType)
			out[i] = eventmodels.OptionAnalytics{
				TheoreticalPrice: g.Price,
				Delta:            g.Delta,
			}
			continue
		}

		g := ComputeGreeks(row.Forward, row.Strike, row.TimeYears, e.RiskFreeRate, row.Sigma, row.OptionType, e.TradingDaysPerYear)
		gex := GammaExposure(g.Gamma, row.Forward, row.OpenInterest, e.ContractMultiplier, row.OptionType)

		out[i] = eventmodels.OptionAnalytics{
			TheoreticalPrice: g.Price,
			Delta:            g.Delta,
			Gamma:            g.Gamma,
			Vega:             g.Vega,
			Theta:            g.Theta,
			GammaExposure:    &gex,
		}
	}

	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func rowValid(row BatchRow) bool {
	for _, v := range []float64{row.Forward, row.Strike, row.Sigma, row.TimeYears} {
		if !finite(v) || v <= tinyEpsilon {
			return false
		}
	}

	return row.OptionType.Validate() == nil
}

// discountFor guards against a non-finite T leaking into the discount factor
// of a masked row.
func discountFor(rate, tYears float64) float64 {
	if math.IsNaN(tYears) || math.IsInf(tYears, 0) {
		return 1
	}

	return math.Exp(-rate * tYears)
}
