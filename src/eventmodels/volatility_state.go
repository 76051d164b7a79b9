package eventmodels

import "time"

// VolatilityState is the latest annualized historical volatility for one
// underlying. Undefined means there was not enough price history to estimate.
// States are superseded atomically per underlying; a stale state is never
// served past a single refresh cycle.
type VolatilityState struct {
	Underlying    string    `json:"underlying"`
	AsOf          time.Time `json:"as_of"`
	AnnualizedVol float64   `json:"annualized_vol"`
	Undefined     bool      `json:"undefined,omitempty"`
}

func (v VolatilityState) Defined() bool {
	return !v.Undefined
}
