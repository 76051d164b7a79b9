package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jiaming2012/options-board/src/eventmodels"
	"github.com/jiaming2012/options-board/src/marketcalendar"
	"github.com/jiaming2012/options-board/src/moex"
)

// ErrCycleInProgress is returned when an ingestion cycle is requested for an
// asset whose previous cycle has not settled yet.
var ErrCycleInProgress = errors.New("ingestion cycle already in progress for asset")

// Feed is the upstream market-data surface the scheduler pulls candles from.
type Feed interface {
	FetchCandles(ctx context.Context, venue moex.Venue, security string, day time.Time, since time.Time) ([]eventmodels.Candle, error)
}

// VolatilityInvalidator is notified after a cycle merges new bars so that the
// cached volatility state is recomputed before it is served again.
type VolatilityInvalidator interface {
	Invalidate(underlying string)
}

type cyclePhase int

const (
	phaseIdle cyclePhase = iota
	phaseFetching
	phaseMerging
)

// Scheduler ingests missing minute candles per underlying. One cycle walks
// the trading days between the last stored bar (plus one minute) and now,
// fetching each day as an independent job under a fixed concurrency bound.
// A day's failure is isolated: it is logged and reported, never propagated as
// a cycle failure.
type Scheduler struct {
	store        eventmodels.PriceSeriesStore
	feed         Feed
	roll         *marketcalendar.RollSelector
	invalidator  VolatilityInvalidator
	maxInFlight  int
	lookback     time.Duration
	fetchTimeout time.Duration

	mu     sync.Mutex
	phases map[string]cyclePhase
}

func NewScheduler(store eventmodels.PriceSeriesStore, feed Feed, roll *marketcalendar.RollSelector, invalidator VolatilityInvalidator, maxInFlight int, lookback, fetchTimeout time.Duration) *Scheduler {
	return &Scheduler{
		store:        store,
		feed:         feed,
		roll:         roll,
		invalidator:  invalidator,
		maxInFlight:  maxInFlight,
		lookback:     lookback,
		fetchTimeout: fetchTimeout,
		phases:       make(map[string]cyclePhase),
	}
}

func (s *Scheduler) enterCycle(asset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phases[asset] != phaseIdle {
		return fmt.Errorf("enterCycle: %s: %w", asset, ErrCycleInProgress)
	}
	s.phases[asset] = phaseFetching

	return nil
}

func (s *Scheduler) setPhase(asset string, phase cyclePhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases[asset] = phase
}

// RunCycle ingests all missing candles for one underlying and returns the
// per-day report. Only a store failure while resolving the resume point
// surfaces as an error; per-day fetch problems end up in the report.
func (s *Scheduler) RunCycle(ctx context.Context, underlying string) (eventmodels.CycleReport, error) {
	report := eventmodels.CycleReport{
		CycleID:    uuid.New(),
		Underlying: underlying,
		StartedAt:  time.Now(),
	}

	if err := s.enterCycle(underlying); err != nil {
		return report, err
	}
	defer s.setPhase(underlying, phaseIdle)

	venue, series := moex.ResolveVenue(underlying)

	resume, err := s.resumePoint(ctx, series)
	if err != nil {
		return report, fmt.Errorf("RunCycle: %w", err)
	}

	now := time.Now()
	days := listTradingDays(resume, now)
	log.WithFields(log.Fields{
		"cycle":      report.CycleID,
		"underlying": underlying,
		"resume":     resume,
		"days":       len(days),
	}).Infof("RunCycle: starting ingestion")

	results := make([]eventmodels.DayFetchResult, len(days))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxInFlight)

	for i, day := range days {
		i, day := i, day
		g.Go(func() error {
			results[i] = s.fetchDay(groupCtx, venue, series, day, resume)
			// isolated per-day failures never cancel sibling fetches
			return nil
		})
	}

	// errgroup funcs always return nil; Wait only synchronizes
	_ = g.Wait()

	s.setPhase(underlying, phaseMerging)

	report.Days = results
	report.FinishedAt = time.Now()

	if report.BarsMerged() > 0 && s.invalidator != nil {
		s.invalidator.Invalidate(series)
	}

	log.WithFields(log.Fields{
		"cycle":      report.CycleID,
		"underlying": underlying,
		"merged":     report.BarsMerged(),
		"failed":     report.FailedDays(),
	}).Infof("RunCycle: finished ingestion")

	return report, nil
}

// resumePoint is one minute after the last stored bar, or the configured
// lookback horizon for an empty series.
func (s *Scheduler) resumePoint(ctx context.Context, series string) (time.Time, error) {
	latest, ok, err := s.store.LatestTimestamp(ctx, series)
	if err != nil {
		return time.Time{}, fmt.Errorf("resumePoint: failed to read latest timestamp for %s: %w", series, err)
	}

	if !ok {
		return time.Now().Add(-s.lookback), nil
	}

	return latest.Add(time.Minute), nil
}

// listTradingDays enumerates the calendar days from resume to now with
// weekends excluded up front; the fetch step never sees them.
func listTradingDays(resume, now time.Time) []time.Time {
	var days []time.Time
	for day := resume; !day.After(now); day = day.AddDate(0, 0, 1) {
		if marketcalendar.IsWeekend(day) {
			continue
		}
		days = append(days, day)
	}

	return days
}

// fetchDay pulls and merges one trading day. For futures-style assets the
// active contract is resolved for that specific day: days on opposite sides
// of a roll boundary target different contract codes.
func (s *Scheduler) fetchDay(ctx context.Context, venue moex.Venue, series string, day, since time.Time) eventmodels.DayFetchResult {
	result := eventmodels.DayFetchResult{Date: day}

	security := series
	if venue == moex.VenueFutures {
		security = s.roll.ActiveContract(series, day)
		result.ContractCode = security
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	candles, err := s.feed.FetchCandles(fetchCtx, venue, security, day, since)
	if err != nil {
		result.Error = err.Error()
		log.WithFields(log.Fields{
			"underlying": series,
			"security":   security,
			"day":        day.Format("2006-01-02"),
		}).Warnf("fetchDay: fetch failed, will retry next cycle: %v", err)
		return result
	}

	if len(candles) == 0 {
		return result
	}

	if err := s.store.AppendOrUpdate(ctx, series, candles); err != nil {
		result.Error = err.Error()
		log.WithFields(log.Fields{
			"underlying": series,
			"day":        day.Format("2006-01-02"),
		}).Errorf("fetchDay: merge failed: %v", err)
		return result
	}

	result.BarsFetched = len(candles)

	return result
}
