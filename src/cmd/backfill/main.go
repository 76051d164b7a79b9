package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jiaming2012/options-board/src/config"
	"github.com/jiaming2012/options-board/src/marketcalendar"
	"github.com/jiaming2012/options-board/src/moex"
	"github.com/jiaming2012/options-board/src/scheduler"
	"github.com/jiaming2012/options-board/src/store"
	"github.com/jiaming2012/options-board/src/utils"
)

type RunArgs struct {
	Assets        []string
	LookbackWeeks int
}

var runCmd = &cobra.Command{
	Use:   "go run src/cmd/backfill/main.go --assets SiU5,RIU5",
	Short: "Backfill minute candles for the given assets",
	Run: func(cmd *cobra.Command, args []string) {
		assets, err := cmd.Flags().GetStringSlice("assets")
		if err != nil {
			log.Fatalf("error getting assets: %v", err)
		}

		lookbackWeeks, err := cmd.Flags().GetInt("lookback-weeks")
		if err != nil {
			log.Fatalf("error getting lookback-weeks: %v", err)
		}

		if err := Run(RunArgs{Assets: assets, LookbackWeeks: lookbackWeeks}); err != nil {
			log.Fatalf("Error: %v", err)
		}
	},
}

func Run(args RunArgs) error {
	if err := utils.InitEnvironmentVariables(); err != nil {
		return fmt.Errorf("error loading environment variables: %v", err)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}

	if args.LookbackWeeks > 0 {
		cfg.Scheduler.LookbackWeeks = args.LookbackWeeks
	}

	candleStore, err := store.NewCandleStore(cfg.ClickHouse.DSN, cfg.ClickHouse.MaxOpenConns)
	if err != nil {
		return err
	}
	defer candleStore.Close()

	feed := moex.NewClient(cfg.Moex.BaseURL, cfg.Moex.Timeout)
	roll := marketcalendar.NewRollSelector(cfg.Scheduler.Commodities)

	ingestion := scheduler.NewScheduler(candleStore, feed, roll, nil, cfg.Scheduler.MaxConcurrentFetches, cfg.Scheduler.Lookback(), cfg.Scheduler.FetchTimeout)

	ctx := context.Background()
	for _, asset := range args.Assets {
		report, err := ingestion.RunCycle(ctx, asset)
		if err != nil {
			return fmt.Errorf("error backfilling %s: %v", asset, err)
		}

		log.Infof("backfilled %s: %d bars merged, %d of %d days failed", asset, report.BarsMerged(), report.FailedDays(), len(report.Days))
		for _, day := range report.Days {
			if day.Failed() {
				log.Warnf("  %s (%s): %s", day.Date.Format("2006-01-02"), day.ContractCode, day.Error)
			}
		}
	}

	return nil
}

func main() {
	runCmd.PersistentFlags().StringSlice("assets", []string{}, "The assets to backfill.")
	runCmd.PersistentFlags().Int("lookback-weeks", 0, "Override the configured lookback horizon.")

	runCmd.MarkPersistentFlagRequired("assets")

	runCmd.Execute()
}
