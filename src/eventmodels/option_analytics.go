package eventmodels

// OptionAnalytics is a value object derived from (contract, quote, volatility
// state, time-to-expiry). It has no identity beyond its contract id and is
// always replaced wholesale, never mutated in place.
type OptionAnalytics struct {
	TheoreticalPrice  float64  `json:"theoretical_price"`
	Delta             float64  `json:"delta"`
	Gamma             float64  `json:"gamma"`
	Vega              float64  `json:"vega"`
	Theta             float64  `json:"theta"`
	ImpliedVolatility *float64 `json:"implied_volatility,omitempty"`
	GammaExposure     *float64 `json:"gamma_exposure,omitempty"`
}
