package pricing

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jiaming2012/options-board/src/eventmodels"
)

// validity threshold for forward, strike, sigma and T inputs
const tinyEpsilon = 1e-12

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

type Greeks struct {
	Price float64
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
}

// Black76Price prices a European option on a forward under Black-76. With
// T <= 0 or sigma <= 0 it degrades to discounted intrinsic value.
func Black76Price(forward, strike, tYears, rate, sigma float64, optionType eventmodels.OptionType) float64 {
	discount := math.Exp(-rate * tYears)

	if tYears <= 0 || sigma <= 0 {
		return discount * intrinsic(forward, strike, optionType)
	}

	d1, d2 := d1d2(forward, strike, tYears, sigma)

	if optionType == eventmodels.Put {
		return discount * (strike*stdNormal.CDF(-d2) - forward*stdNormal.CDF(-d1))
	}

	return discount * (forward*stdNormal.CDF(d1) - strike*stdNormal.CDF(d2))
}

// ComputeGreeks returns the Black-76 price and sensitivities. Vega is per
// volatility percentage point; theta is the one-day decay, i.e. the
// annualized theta divided by tradingDaysPerYear.
func ComputeGreeks(forward, strike, tYears, rate, sigma float64, optionType eventmodels.OptionType, tradingDaysPerYear int) Greeks {
	discount := math.Exp(-rate * tYears)

	if tYears <= 0 || sigma <= 0 {
		return degenerateGreeks(forward, strike, discount, optionType)
	}

	d1, d2 := d1d2(forward, strike, tYears, sigma)
	sqrtT := math.Sqrt(tYears)
	pdfD1 := stdNormal.Prob(d1)

	var price, delta, undiscounted float64
	if optionType == eventmodels.Put {
		undiscounted = strike*stdNormal.CDF(-d2) - forward*stdNormal.CDF(-d1)
		delta = -discount * stdNormal.CDF(-d1)
	} else {
		undiscounted = forward*stdNormal.CDF(d1) - strike*stdNormal.CDF(d2)
		delta = discount * stdNormal.CDF(d1)
	}
	price = discount * undiscounted

	thetaAnnual := -discount*forward*pdfD1*sigma/(2*sqrtT) - rate*price

	return Greeks{
		Price: price,
		Delta: delta,
		Gamma: discount * pdfD1 / (forward * sigma * sqrtT),
		Vega:  discount * forward * pdfD1 * sqrtT / 100,
		Theta: thetaAnnual / float64(tradingDaysPerYear),
	}
}

// degenerateGreeks covers the expired / zero-volatility case: discounted
// intrinsic price, all Greeks zero except delta.
func degenerateGreeks(forward, strike, discount float64, optionType eventmodels.OptionType) Greeks {
	g := Greeks{Price: discount * intrinsic(forward, strike, optionType)}
	if forward > 0 {
		g.Delta = optionType.Sign() * discount
	}

	return g
}

func intrinsic(forward, strike float64, optionType eventmodels.OptionType) float64 {
	if optionType == eventmodels.Put {
		return math.Max(strike-forward, 0)
	}

	return math.Max(forward-strike, 0)
}

func d1d2(forward, strike, tYears, sigma float64) (float64, float64) {
	sigmaSqrtT := sigma * math.Sqrt(tYears)
	d1 := (math.Log(forward/strike) + 0.5*sigma*sigma*tYears) / sigmaSqrtT

	return d1, d1 - sigmaSqrtT
}

// GammaExposure is the dealer gamma exposure proxy for one contract, signed
// positive for calls and negative for puts.
func GammaExposure(gamma, forward, openInterest, contractMultiplier float64, optionType eventmodels.OptionType) float64 {
	return optionType.Sign() * gamma * forward * forward * openInterest * contractMultiplier
}
