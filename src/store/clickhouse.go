package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/options-board/src/eventmodels"
)

// CandleStore keeps one ReplacingMergeTree table of minute candles per
// underlying. The replacing engine keyed by timestamp gives last-writer-wins
// upsert semantics: concurrent ingestion tasks may safely write overlapping
// days.
type CandleStore struct {
	db *sql.DB
}

func NewCandleStore(dsn string, maxOpenConns int) (*CandleStore, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewCandleStore: failed to open clickhouse connection: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewCandleStore: failed to ping clickhouse: %w", err)
	}

	return &CandleStore{db: db}, nil
}

func (s *CandleStore) Close() error {
	return s.db.Close()
}

// tableName builds a safe per-underlying table name: anything outside
// [A-Za-z0-9_] becomes an underscore.
func tableName(underlying string) string {
	var b strings.Builder
	for _, ch := range underlying {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}

	return b.String() + "_candles"
}

func (s *CandleStore) ensureTable(ctx context.Context, underlying string) (string, error) {
	tbl := tableName(underlying)

	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp   DateTime64(0) CODEC(Delta, ZSTD),
			open        Float64 CODEC(Gorilla, ZSTD),
			high        Float64 CODEC(Gorilla, ZSTD),
			low         Float64 CODEC(Gorilla, ZSTD),
			close       Float64 CODEC(Gorilla, ZSTD),
			volume      UInt64 CODEC(Delta, ZSTD),
			ingested_at DateTime64(3) DEFAULT now() CODEC(Delta, ZSTD)
		)
		ENGINE = ReplacingMergeTree(ingested_at)
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp)`, tbl)

	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return "", fmt.Errorf("ensureTable: failed to create table %s: %w", tbl, err)
	}

	return tbl, nil
}

// AppendOrUpdate inserts candles in one batch. Rows sharing a timestamp with
// existing data supersede it via the replacing engine; idempotent on retry.
func (s *CandleStore) AppendOrUpdate(ctx context.Context, underlying string, candles []eventmodels.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tbl, err := s.ensureTable(ctx, underlying)
	if err != nil {
		return fmt.Errorf("AppendOrUpdate: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("AppendOrUpdate: failed to begin batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (timestamp, open, high, low, close, volume, ingested_at) VALUES (?, ?, ?, ?, ?, ?, ?)", tbl))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("AppendOrUpdate: failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ingestedAt := time.Now()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume, ingestedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("AppendOrUpdate: failed to append candle at %s: %w", c.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("AppendOrUpdate: failed to commit batch: %w", err)
	}

	log.Debugf("AppendOrUpdate: wrote %d candles for %s", len(candles), underlying)

	return nil
}

// LatestTimestamp returns the newest stored bar time, or ok=false when the
// series is empty.
func (s *CandleStore) LatestTimestamp(ctx context.Context, underlying string) (time.Time, bool, error) {
	tbl, err := s.ensureTable(ctx, underlying)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("LatestTimestamp: %w", err)
	}

	var latest sql.NullTime
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT maxOrNull(timestamp) FROM %s", tbl))
	if err := row.Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("LatestTimestamp: failed to scan max timestamp for %s: %w", underlying, err)
	}

	if !latest.Valid {
		return time.Time{}, false, nil
	}

	return latest.Time, true, nil
}

// ReadCloses returns up to limit (timestamp, close) pairs ascending by time,
// deduplicated by the replacing engine (FINAL).
func (s *CandleStore) ReadCloses(ctx context.Context, underlying string, limit int) ([]eventmodels.ClosePoint, error) {
	tbl, err := s.ensureTable(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("ReadCloses: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT timestamp, close FROM %s FINAL ORDER BY timestamp ASC LIMIT ?", tbl), limit)
	if err != nil {
		return nil, fmt.Errorf("ReadCloses: query failed for %s: %w", underlying, err)
	}
	defer rows.Close()

	out := make([]eventmodels.ClosePoint, 0, limit)
	for rows.Next() {
		var p eventmodels.ClosePoint
		if err := rows.Scan(&p.Timestamp, &p.Close); err != nil {
			return nil, fmt.Errorf("ReadCloses: scan failed for %s: %w", underlying, err)
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ReadCloses: rows failed for %s: %w", underlying, err)
	}

	return out, nil
}

// ReadCandles returns up to limit candles, newest first, for display.
func (s *CandleStore) ReadCandles(ctx context.Context, underlying string, limit int) ([]eventmodels.Candle, error) {
	tbl, err := s.ensureTable(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("ReadCandles: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT timestamp, open, high, low, close, volume FROM %s FINAL ORDER BY timestamp DESC LIMIT ?", tbl), limit)
	if err != nil {
		return nil, fmt.Errorf("ReadCandles: query failed for %s: %w", underlying, err)
	}
	defer rows.Close()

	out := make([]eventmodels.Candle, 0, limit)
	for rows.Next() {
		var c eventmodels.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("ReadCandles: scan failed for %s: %w", underlying, err)
		}
		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ReadCandles: rows failed for %s: %w", underlying, err)
	}

	return out, nil
}
