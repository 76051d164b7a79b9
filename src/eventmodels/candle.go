package eventmodels

import (
	"sort"
	"time"
)

// Candle is one minute bar in exchange-local time. Timestamps are unique per
// (underlying, timestamp); the store upserts on conflict.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    uint64    `json:"volume"`
}

type ClosePoint struct {
	Timestamp time.Time
	Close     float64
}

func SortCandlesAscending(candles []Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
}
