package eventmodels

import (
	"context"
	"time"
)

// PriceSeriesStore is the persistence contract the core depends on. The
// implementation must upsert by timestamp (last writer wins, never duplicate
// rows) and serve ordered reads; whether it is columnar or relational is its
// own business.
type PriceSeriesStore interface {
	AppendOrUpdate(ctx context.Context, underlying string, candles []Candle) error
	LatestTimestamp(ctx context.Context, underlying string) (time.Time, bool, error)
	ReadCloses(ctx context.Context, underlying string, limit int) ([]ClosePoint, error)
	ReadCandles(ctx context.Context, underlying string, limit int) ([]Candle, error)
}
