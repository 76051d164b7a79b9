package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jiaming2012/options-board/src/eventmodels"
	"github.com/jiaming2012/options-board/src/marketcalendar"
	"github.com/jiaming2012/options-board/src/moex"
	"github.com/jiaming2012/options-board/src/pricing"
	"github.com/jiaming2012/options-board/src/volatility"
)

// SnapshotPublisher receives finished board snapshots. Publishing is
// best-effort: a failed publish is logged, the snapshot is still returned.
type SnapshotPublisher interface {
	PublishBoard(ctx context.Context, snapshot eventmodels.BoardSnapshot) error
}

// Service enriches raw option boards with model analytics. Volatility states
// are computed lazily per underlying and held until the ingestion scheduler
// invalidates them after merging new bars.
type Service struct {
	estimator *volatility.Estimator
	engine    *pricing.Engine
	ivSolver  *pricing.IVSolver
	calendar  *marketcalendar.Calendar
	publisher SnapshotPublisher

	minutesPerYear float64
	workers        int

	mu        sync.RWMutex
	volStates map[string]eventmodels.VolatilityState
}

func NewService(estimator *volatility.Estimator, engine *pricing.Engine, ivSolver *pricing.IVSolver, calendar *marketcalendar.Calendar, publisher SnapshotPublisher, tradingDaysPerYear, minutesPerDay, workers int) *Service {
	if workers < 1 {
		workers = 1
	}

	return &Service{
		estimator:      estimator,
		engine:         engine,
		ivSolver:       ivSolver,
		calendar:       calendar,
		publisher:      publisher,
		minutesPerYear: float64(tradingDaysPerYear * minutesPerDay),
		workers:        workers,
		volStates:      make(map[string]eventmodels.VolatilityState),
	}
}

// seriesKey reduces a board underlying to the series the ingestion writes
// candles under: futures contract codes like SiU5 collapse to their Si
// series, shares pass through.
func seriesKey(underlying string) string {
	_, series := moex.ResolveVenue(underlying)
	return series
}

// Invalidate drops the cached volatility state for an underlying. The next
// enrichment recomputes it from the freshly merged series.
func (s *Service) Invalidate(underlying string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.volStates, seriesKey(underlying))
}

func (s *Service) volState(ctx context.Context, underlying string) (eventmodels.VolatilityState, error) {
	series := seriesKey(underlying)

	s.mu.RLock()
	state, ok := s.volStates[series]
	s.mu.RUnlock()
	if ok {
		return state, nil
	}

	state, err := s.estimator.Estimate(ctx, series)
	if err != nil {
		return state, fmt.Errorf("volState: failed to estimate volatility for %s: %w", series, err)
	}

	s.mu.Lock()
	s.volStates[series] = state
	s.mu.Unlock()

	return state, nil
}

// EnrichAsset turns the raw board entries for one underlying into a full
// snapshot: theoretical prices and Greeks from the historical volatility,
// implied volatilities from previous settlement prices, and the aggregate
// gamma exposure. An undefined volatility state yields a snapshot whose rows
// carry quotes but no analytics.
func (s *Service) EnrichAsset(ctx context.Context, underlying string, entries []eventmodels.BoardEntry, dropped int) (eventmodels.BoardSnapshot, error) {
	now := time.Now()
	snapshot := eventmodels.BoardSnapshot{
		Underlying:    underlying,
		GeneratedAt:   now,
		DroppedQuotes: dropped,
		Rows:          make([]eventmodels.BoardRow, len(entries)),
	}

	for i, entry := range entries {
		snapshot.Rows[i] = eventmodels.BoardRow{Contract: entry.Contract, Quote: entry.Quote}
	}

	volState, err := s.volState(ctx, underlying)
	if err != nil {
		return snapshot, fmt.Errorf("EnrichAsset: %w", err)
	}
	snapshot.Volatility = volState

	if !volState.Defined() {
		log.Warnf("EnrichAsset: volatility undefined for %s, serving board without analytics", underlying)
		s.publish(ctx, &snapshot)
		return snapshot, nil
	}

	rows := make([]pricing.BatchRow, len(entries))
	times := make([]float64, len(entries))
	for i, entry := range entries {
		tYears := float64(s.calendar.MinutesToExpiry(entry.Contract.Expiration, now)) / s.minutesPerYear
		times[i] = tYears
		rows[i] = pricing.BatchRow{
			Forward:      entry.Quote.ForwardPrice,
			Strike:       entry.Contract.Strike,
			TimeYears:    tYears,
			Sigma:        volState.AnnualizedVol,
			OptionType:   entry.Contract.OptionType,
			OpenInterest: entry.Quote.OpenInterest,
		}
	}

	analytics := s.priceConcurrently(rows)

	impliedVols := make([]float64, 0, len(entries))
	for i := range snapshot.Rows {
		snapshot.Rows[i].Analytics = analytics[i]

		if analytics[i].GammaExposure != nil {
			snapshot.TotalGEX += *analytics[i].GammaExposure
		}

		entry := entries[i]
		if entry.Quote.PrevSettlementPrice <= 0 {
			continue
		}

		iv, err := s.ivSolver.Solve(entry.Quote.PrevSettlementPrice, entry.Quote.ForwardPrice, entry.Contract.Strike, times[i], s.engine.RiskFreeRate, entry.Contract.OptionType)
		if err != nil {
			if !errors.Is(err, pricing.ErrNoSolution) {
				log.Debugf("EnrichAsset: implied vol for %s: %v", entry.Contract.ID, err)
			}
			continue
		}

		snapshot.Rows[i].Analytics.ImpliedVolatility = &iv
		impliedVols = append(impliedVols, iv)
	}

	if len(impliedVols) > 0 {
		if mean, err := stats.Mean(impliedVols); err == nil {
			snapshot.MeanImpliedV = mean
		}
	}

	s.publish(ctx, &snapshot)

	return snapshot, nil
}

// priceConcurrently slices the batch across the worker pool. Chunk outputs
// land in a preallocated slice, so row order is preserved.
func (s *Service) priceConcurrently(rows []pricing.BatchRow) []eventmodels.OptionAnalytics {
	if len(rows) == 0 {
		return nil
	}

	out := make([]eventmodels.OptionAnalytics, len(rows))

	chunk := (len(rows) + s.workers - 1) / s.workers

	var g errgroup.Group
	for start := 0; start < len(rows); start += chunk {
		start := start
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		g.Go(func() error {
			copy(out[start:end], s.engine.PriceBatch(rows[start:end]))
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (s *Service) publish(ctx context.Context, snapshot *eventmodels.BoardSnapshot) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.PublishBoard(ctx, *snapshot); err != nil {
		log.Errorf("publish: failed to publish board for %s: %v", snapshot.Underlying, err)
	}
}
