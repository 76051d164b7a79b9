package eventmodels

import "time"

// BoardEntry is a contract plus its latest quote as delivered by the feed,
// before enrichment.
type BoardEntry struct {
	Contract OptionContract `json:"contract"`
	Quote    OptionQuote    `json:"quote"`
}

type BoardRow struct {
	Contract  OptionContract  `json:"contract"`
	Quote     OptionQuote     `json:"quote"`
	Analytics OptionAnalytics `json:"analytics"`
}

// BoardSnapshot is the full enriched option board for one underlying. It is
// produced as a whole and published to the cache as a whole.
type BoardSnapshot struct {
	Underlying    string          `json:"underlying"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Volatility    VolatilityState `json:"volatility"`
	Rows          []BoardRow      `json:"rows"`
	TotalGEX      float64         `json:"total_gex"`
	MeanImpliedV  float64         `json:"mean_implied_vol"`
	DroppedQuotes int             `json:"dropped_quotes,omitempty"`
}
