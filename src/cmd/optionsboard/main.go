package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jiaming2012/options-board/src/analytics"
	"github.com/jiaming2012/options-board/src/api/boardapi"
	"github.com/jiaming2012/options-board/src/cache"
	"github.com/jiaming2012/options-board/src/config"
	"github.com/jiaming2012/options-board/src/eventmodels"
	"github.com/jiaming2012/options-board/src/marketcalendar"
	"github.com/jiaming2012/options-board/src/moex"
	"github.com/jiaming2012/options-board/src/pricing"
	"github.com/jiaming2012/options-board/src/scheduler"
	"github.com/jiaming2012/options-board/src/store"
	"github.com/jiaming2012/options-board/src/utils"
	"github.com/jiaming2012/options-board/src/volatility"
)

// app ties the ingestion scheduler and the analytics service together: one
// refresh ingests missing bars for an asset and re-enriches its board.
type app struct {
	feed      *moex.Client
	scheduler *scheduler.Scheduler
	analytics *analytics.Service
}

func (a *app) Refresh(ctx context.Context, underlying string) (eventmodels.CycleReport, error) {
	report, err := a.scheduler.RunCycle(ctx, underlying)
	if err != nil {
		return report, err
	}

	board, dropped, err := a.feed.FetchBoard(ctx)
	if err != nil {
		return report, err
	}

	entries, found := board[underlying]
	if !found {
		log.Warnf("Refresh: no board entries for %s", underlying)
		return report, nil
	}

	if _, err := a.analytics.EnrichAsset(ctx, underlying, entries, dropped); err != nil {
		return report, err
	}

	return report, nil
}

// runCycles ingests and enriches every asset on the board, a bounded number
// of assets at a time.
func (a *app) runCycles(ctx context.Context) {
	board, dropped, err := a.feed.FetchBoard(ctx)
	if err != nil {
		log.Errorf("runCycles: failed to fetch option board: %v", err)
		return
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, underlying := range moex.Assets(board) {
		underlying := underlying
		entries := board[underlying]
		g.Go(func() error {
			if _, err := a.scheduler.RunCycle(groupCtx, underlying); err != nil {
				if !errors.Is(err, scheduler.ErrCycleInProgress) {
					log.Errorf("runCycles: ingestion failed for %s: %v", underlying, err)
				}
				return nil
			}

			if _, err := a.analytics.EnrichAsset(groupCtx, underlying, entries, dropped); err != nil {
				log.Errorf("runCycles: enrichment failed for %s: %v", underlying, err)
			}

			return nil
		})
	}

	_ = g.Wait()
}

func run() error {
	if err := utils.InitEnvironmentVariables(); err != nil {
		return err
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}

	calendar, err := cfg.BuildCalendar()
	if err != nil {
		return err
	}

	candleStore, err := store.NewCandleStore(cfg.ClickHouse.DSN, cfg.ClickHouse.MaxOpenConns)
	if err != nil {
		return err
	}
	defer candleStore.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshotCache, err := cache.NewSnapshotCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	if err != nil {
		return err
	}
	defer snapshotCache.Close()

	feed := moex.NewClient(cfg.Moex.BaseURL, cfg.Moex.Timeout)
	roll := marketcalendar.NewRollSelector(cfg.Scheduler.Commodities)

	estimator := volatility.NewEstimator(candleStore, cfg.Volatility.Window, cfg.Volatility.ClampWindow, cfg.Pricing.TradingDaysPerYear, cfg.Pricing.MinutesPerDay)
	engine := pricing.NewEngine(cfg.Pricing.RiskFreeRate, cfg.Pricing.TradingDaysPerYear, cfg.Pricing.ContractMultiplier)
	ivSolver := pricing.NewIVSolver(cfg.ImpliedVol.Tolerance, cfg.ImpliedVol.MaxIterations, cfg.ImpliedVol.VolLower, cfg.ImpliedVol.VolUpper, cfg.ImpliedVol.MemoTTL)

	analyticsService := analytics.NewService(estimator, engine, ivSolver, calendar, snapshotCache, cfg.Pricing.TradingDaysPerYear, cfg.Pricing.MinutesPerDay, cfg.Pricing.Workers)
	ingestion := scheduler.NewScheduler(candleStore, feed, roll, analyticsService, cfg.Scheduler.MaxConcurrentFetches, cfg.Scheduler.Lookback(), cfg.Scheduler.FetchTimeout)

	application := &app{feed: feed, scheduler: ingestion, analytics: analyticsService}

	router := mux.NewRouter()
	boardapi.NewHandler(snapshotCache, application).SetupHandler(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	go func() {
		application.runCycles(ctx)

		ticker := time.NewTicker(cfg.Scheduler.CycleInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				application.runCycles(ctx)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	signal.Notify(stop, syscall.SIGTERM)

	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("error shutting down server: %v", err)
	} else {
		log.Info("Server gracefully stopped")
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: %v", err)
	}
}
