package moex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/options-board/src/eventmodels"
	"github.com/jiaming2012/options-board/src/utils"
)

const (
	candlePageSize = 500
	// candle requests cover the whole exchange day
	dayFromHour, dayFromMinute = 8, 59
	dayTillHour, dayTillMinute = 23, 49
)

// Venue is the ISS engine/market pair a security trades on.
type Venue struct {
	Engine string
	Market string
}

var (
	VenueFutures = Venue{Engine: "futures", Market: "forts"}
	VenueShares  = Venue{Engine: "stock", Market: "shares"}
)

// ResolveVenue classifies an underlying: codes ending in a digit are futures
// contract codes whose series is the first two characters; everything else is
// a share. Returns the venue and the normalized series name.
func ResolveVenue(underlying string) (Venue, string) {
	if len(underlying) > 0 {
		last := underlying[len(underlying)-1]
		if last >= '0' && last <= '9' {
			series := underlying
			if len(series) > 2 {
				series = series[:2]
			}
			return VenueFutures, series
		}
	}

	return VenueShares, underlying
}

// Client talks to an ISS-style market data endpoint. Empty and non-200
// responses mean "no data for this request", not a failure.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("validateName: empty name")
	}

	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' || c == '.') {
			return fmt.Errorf("validateName: invalid character in name: %c (%s)", c, name)
		}
	}

	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) (bool, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("getJSON: failed to create request: %w", err)
	}

	req.Header.Add("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("getJSON: failed to fetch %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		log.Debugf("getJSON: %s returned %s, treating as no data", path, res.Status)
		return false, nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return false, fmt.Errorf("getJSON: failed to read body of %s: %w", path, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("getJSON: failed to decode json of %s: %w", path, err)
	}

	return true, nil
}

// FetchCandles returns the minute candles of one security for one exchange
// day, ascending by time. A since bound after the day's open narrows the
// request so already-stored history is never refetched. No data yields an
// empty slice and no error.
func (c *Client) FetchCandles(ctx context.Context, venue Venue, security string, day time.Time, since time.Time) ([]eventmodels.Candle, error) {
	if err := validateName(security); err != nil {
		return nil, fmt.Errorf("FetchCandles: %w", err)
	}
	if err := validateName(venue.Market); err != nil {
		return nil, fmt.Errorf("FetchCandles: %w", err)
	}

	from := time.Date(day.Year(), day.Month(), day.Day(), dayFromHour, dayFromMinute, 0, 0, day.Location())
	till := time.Date(day.Year(), day.Month(), day.Day(), dayTillHour, dayTillMinute, 0, 0, day.Location())
	from = utils.GetMaxTime(from, utils.TruncateToMinute(since))

	path := fmt.Sprintf("/iss/engines/%s/markets/%s/securities/%s/candles.json", venue.Engine, venue.Market, security)

	var all []eventmodels.Candle
	for _, start := range []int{0, candlePageSize} {
		params := url.Values{}
		params.Set("from", from.Format("2006-01-02 15:04"))
		params.Set("till", till.Format("2006-01-02 15:04"))
		params.Set("interval", "1")
		params.Set("iss.meta", "off")
		params.Set("candles.columns", "open,close,high,low,volume,begin")
		params.Set("start", fmt.Sprintf("%d", start))

		var resp candlesResponse
		ok, err := c.getJSON(ctx, path, params, &resp)
		if err != nil {
			return nil, fmt.Errorf("FetchCandles: %w", err)
		}
		if !ok {
			continue
		}

		all = append(all, parseCandleRows(security, resp.Candles)...)
	}

	eventmodels.SortCandlesAscending(all)

	return all, nil
}

func parseCandleRows(security string, table issTable) []eventmodels.Candle {
	idx := table.columnIndex()

	candles := make([]eventmodels.Candle, 0, len(table.Data))
	for _, row := range table.Data {
		candle, err := parseCandleRow(row, idx)
		if err != nil {
			log.Warnf("parseCandleRows: dropping malformed candle row for %s: %v", security, err)
			continue
		}
		candles = append(candles, candle)
	}

	return candles
}

func parseCandleRow(row []interface{}, idx map[string]int) (eventmodels.Candle, error) {
	begin, err := cellString(row, idx["begin"])
	if err != nil {
		return eventmodels.Candle{}, fmt.Errorf("parseCandleRow: begin: %w", err)
	}

	timestamp, err := time.Parse("2006-01-02 15:04:05", begin)
	if err != nil {
		return eventmodels.Candle{}, fmt.Errorf("parseCandleRow: failed to parse begin %q: %w", begin, err)
	}

	var vals [5]float64
	for i, col := range []string{"open", "close", "high", "low", "volume"} {
		v, err := cellFloat(row, idx[col])
		if err != nil {
			return eventmodels.Candle{}, fmt.Errorf("parseCandleRow: %s: %w", col, err)
		}
		vals[i] = v
	}

	return eventmodels.Candle{
		Timestamp: timestamp,
		Open:      vals[0],
		Close:     vals[1],
		High:      vals[2],
		Low:       vals[3],
		Volume:    uint64(vals[4]),
	}, nil
}

// FetchBoard pulls the whole options securities board and groups it by
// underlying asset. Malformed rows are dropped with a warning and counted in
// the returned drop tally.
func (c *Client) FetchBoard(ctx context.Context) (map[string][]eventmodels.BoardEntry, int, error) {
	params := url.Values{}
	params.Set("iss.meta", "off")
	params.Set("securities.columns",
		"SECID,PREVSETTLEPRICE,LASTTRADEDATE,PREVOPENPOSITION,OPTIONTYPE,STRIKE,UNDERLYINGASSET,UNDERLYINGSETTLEPRICE")

	var resp securitiesResponse
	ok, err := c.getJSON(ctx, "/iss/engines/futures/markets/options/securities.json", params, &resp)
	if err != nil {
		return nil, 0, fmt.Errorf("FetchBoard: %w", err)
	}
	if !ok {
		return map[string][]eventmodels.BoardEntry{}, 0, nil
	}

	idx := resp.Securities.columnIndex()
	board := make(map[string][]eventmodels.BoardEntry)
	dropped := 0

	for _, row := range resp.Securities.Data {
		entry, underlying, err := parseBoardRow(row, idx)
		if err != nil {
			log.Warnf("FetchBoard: dropping malformed board row: %v", err)
			dropped++
			continue
		}
		board[underlying] = append(board[underlying], entry)
	}

	return board, dropped, nil
}

func parseBoardRow(row []interface{}, idx map[string]int) (eventmodels.BoardEntry, string, error) {
	secID, err := cellString(row, idx["SECID"])
	if err != nil {
		return eventmodels.BoardEntry{}, "", fmt.Errorf("parseBoardRow: SECID: %w", err)
	}

	underlying, err := cellString(row, idx["UNDERLYINGASSET"])
	if err != nil {
		return eventmodels.BoardEntry{}, "", fmt.Errorf("parseBoardRow: UNDERLYINGASSET (%s): %w", secID, err)
	}

	expiryStr, err := cellString(row, idx["LASTTRADEDATE"])
	if err != nil {
		return eventmodels.BoardEntry{}, "", fmt.Errorf("parseBoardRow: LASTTRADEDATE (%s): %w", secID, err)
	}

	expiry, err := time.Parse("2006-01-02", expiryStr)
	if err != nil {
		return eventmodels.BoardEntry{}, "", fmt.Errorf("parseBoardRow: failed to parse expiry %q (%s): %w", expiryStr, secID, err)
	}

	typeCode, err := cellString(row, idx["OPTIONTYPE"])
	if err != nil {
		return eventmodels.BoardEntry{}, "", fmt.Errorf("parseBoardRow: OPTIONTYPE (%s): %w", secID, err)
	}

	var optionType eventmodels.OptionType
	switch typeCode {
	case "C":
		optionType = eventmodels.Call
	case "P":
		optionType = eventmodels.Put
	default:
		return eventmodels.BoardEntry{}, "", fmt.Errorf("parseBoardRow: unknown option type %q (%s)", typeCode, secID)
	}

	strike, err := cellFloat(row, idx["STRIKE"])
	if err != nil {
		return eventmodels.BoardEntry{}, "", fmt.Errorf("parseBoardRow: STRIKE (%s): %w", secID, err)
	}
	if strike <= 0 {
		return eventmodels.BoardEntry{}, "", fmt.Errorf("parseBoardRow: non-positive strike %v (%s)", strike, secID)
	}

	forward, err := cellFloat(row, idx["UNDERLYINGSETTLEPRICE"])
	if err != nil {
		return eventmodels.BoardEntry{}, "", fmt.Errorf("parseBoardRow: UNDERLYINGSETTLEPRICE (%s): %w", secID, err)
	}

	prevSettle, err := cellFloat(row, idx["PREVSETTLEPRICE"])
	if err != nil {
		return eventmodels.BoardEntry{}, "", fmt.Errorf("parseBoardRow: PREVSETTLEPRICE (%s): %w", secID, err)
	}

	// open interest may legitimately be absent
	openInterest, _ := cellFloat(row, idx["PREVOPENPOSITION"])

	entry := eventmodels.BoardEntry{
		Contract: eventmodels.OptionContract{
			ID:         secID,
			Underlying: underlying,
			Strike:     strike,
			OptionType: optionType,
			Expiration: expiry,
		},
		Quote: eventmodels.OptionQuote{
			ContractID:          secID,
			ForwardPrice:        forward,
			PrevSettlementPrice: prevSettle,
			OpenInterest:        openInterest,
		},
	}

	return entry, underlying, nil
}

// Assets lists the distinct underlyings present on the board, sorted.
func Assets(board map[string][]eventmodels.BoardEntry) []string {
	assets := make([]string, 0, len(board))
	for asset := range board {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	return assets
}
