package moex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/options-board/src/eventmodels"
)

func TestResolveVenue(t *testing.T) {
	t.Run("futures code", func(t *testing.T) {
		venue, series := ResolveVenue("SiU5")
		assert.Equal(t, VenueFutures, venue)
		assert.Equal(t, "Si", series)
	})

	t.Run("share ticker", func(t *testing.T) {
		venue, series := ResolveVenue("SBER")
		assert.Equal(t, VenueShares, venue)
		assert.Equal(t, "SBER", series)
	})
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, validateName("SiU5"))
	assert.NoError(t, validateName("W4-9.25"))
	assert.Error(t, validateName(""))
	assert.Error(t, validateName("Si U5"))
	assert.Error(t, validateName("Si/../U5"))
}

func TestFetchCandles(t *testing.T) {
	day := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)

	t.Run("pages are merged and sorted, malformed rows dropped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/iss/engines/futures/markets/forts/securities/SiU5/candles.json", r.URL.Path)
			assert.Equal(t, "1", r.URL.Query().Get("interval"))
			assert.Equal(t, "2025-06-09 08:59", r.URL.Query().Get("from"))
			assert.Equal(t, "2025-06-09 23:49", r.URL.Query().Get("till"))

			var body string
			if r.URL.Query().Get("start") == "0" {
				// second row deliberately out of order
				body = `{"candles": {"columns": ["open","close","high","low","volume","begin"], "data": [
					[100.0, 101.0, 101.5, 99.5, 120, "2025-06-09 09:01:00"],
					[99.0, 100.0, 100.5, 98.5, 80, "2025-06-09 09:00:00"]
				]}}`
			} else {
				body = `{"candles": {"columns": ["open","close","high","low","volume","begin"], "data": [
					[101.0, 102.0, 102.5, 100.5, 60, "2025-06-09 09:02:00"],
					[101.0, "broken", 102.5, 100.5, 60, "2025-06-09 09:03:00"]
				]}}`
			}

			fmt.Fprint(w, body)
		}))
		defer server.Close()

		client := NewClient(server.URL, 5*time.Second)

		candles, err := client.FetchCandles(context.Background(), VenueFutures, "SiU5", day, time.Time{})
		require.NoError(t, err)
		require.Len(t, candles, 3)

		assert.Equal(t, time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC), candles[0].Timestamp)
		assert.Equal(t, time.Date(2025, 6, 9, 9, 1, 0, 0, time.UTC), candles[1].Timestamp)
		assert.Equal(t, time.Date(2025, 6, 9, 9, 2, 0, 0, time.UTC), candles[2].Timestamp)
		assert.Equal(t, 100.0, candles[0].Close)
		assert.Equal(t, uint64(80), candles[0].Volume)
	})

	t.Run("since bound narrows the request window", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "2025-06-09 12:30", r.URL.Query().Get("from"))
			fmt.Fprint(w, `{"candles": {"columns": [], "data": []}}`)
		}))
		defer server.Close()

		client := NewClient(server.URL, 5*time.Second)
		since := time.Date(2025, 6, 9, 12, 30, 45, 0, time.UTC)

		candles, err := client.FetchCandles(context.Background(), VenueFutures, "SiU5", day, since)
		require.NoError(t, err)
		assert.Empty(t, candles)
	})

	t.Run("non 200 means no data", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(404)
		}))
		defer server.Close()

		client := NewClient(server.URL, 5*time.Second)

		candles, err := client.FetchCandles(context.Background(), VenueFutures, "SiU5", day, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, candles)
	})

	t.Run("invalid security name is rejected", func(t *testing.T) {
		client := NewClient("http://unused", time.Second)

		_, err := client.FetchCandles(context.Background(), VenueFutures, "Si U5", day, time.Time{})
		assert.Error(t, err)
	})
}

func TestFetchBoard(t *testing.T) {
	board := `{"securities": {"columns": ["SECID","PREVSETTLEPRICE","LASTTRADEDATE","PREVOPENPOSITION","OPTIONTYPE","STRIKE","UNDERLYINGASSET","UNDERLYINGSETTLEPRICE"], "data": [
		["Si90000C", 1500.0, "2025-09-18", 240.0, "C", 90000.0, "SiU5", 91200.0],
		["Si90000P", 800.0, "2025-09-18", null, "P", 90000.0, "SiU5", 91200.0],
		["BR85C", 2.1, "2025-09-01", 30.0, "C", 85.0, "BRU5", 84.5],
		["Broken", 1.0, "2025-09-01", 5.0, "X", 85.0, "BRU5", 84.5],
		["NoStrike", 1.0, "2025-09-01", 5.0, "C", 0.0, "BRU5", 84.5]
	]}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/iss/engines/futures/markets/options/securities.json", r.URL.Path)
		fmt.Fprint(w, board)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)

	byAsset, dropped, err := client.FetchBoard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, dropped)
	require.Len(t, byAsset["SiU5"], 2)
	require.Len(t, byAsset["BRU5"], 1)

	call := byAsset["SiU5"][0]
	assert.Equal(t, "Si90000C", call.Contract.ID)
	assert.Equal(t, eventmodels.Call, call.Contract.OptionType)
	assert.Equal(t, 90000.0, call.Contract.Strike)
	assert.Equal(t, time.Date(2025, 9, 18, 0, 0, 0, 0, time.UTC), call.Contract.Expiration)
	assert.Equal(t, 91200.0, call.Quote.ForwardPrice)
	assert.Equal(t, 1500.0, call.Quote.PrevSettlementPrice)
	assert.Equal(t, 240.0, call.Quote.OpenInterest)

	// a null open interest is tolerated, not dropped
	put := byAsset["SiU5"][1]
	assert.Zero(t, put.Quote.OpenInterest)

	assert.Equal(t, []string{"BRU5", "SiU5"}, Assets(byAsset))
}
