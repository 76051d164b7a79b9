package eventmodels

import (
	"time"

	"github.com/google/uuid"
)

// DayFetchResult is the outcome of fetching one trading day's candles.
// Failures are isolated per day; an error here never aborts the cycle.
type DayFetchResult struct {
	Date         time.Time `json:"date"`
	ContractCode string    `json:"contract_code,omitempty"`
	BarsFetched  int       `json:"bars_fetched"`
	Error        string    `json:"error,omitempty"`
}

func (r DayFetchResult) Failed() bool {
	return r.Error != ""
}

// CycleReport aggregates per-day results of one ingestion cycle. Error counts
// are a first-class return value, not a logging side effect.
type CycleReport struct {
	CycleID    uuid.UUID        `json:"cycle_id"`
	Underlying string           `json:"underlying"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Days       []DayFetchResult `json:"days"`
}

func (r CycleReport) BarsMerged() int {
	total := 0
	for _, day := range r.Days {
		if !day.Failed() {
			total += day.BarsFetched
		}
	}

	return total
}

func (r CycleReport) FailedDays() int {
	failed := 0
	for _, day := range r.Days {
		if day.Failed() {
			failed++
		}
	}

	return failed
}
