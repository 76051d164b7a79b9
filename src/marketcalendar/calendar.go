package marketcalendar

import (
	"fmt"
	"time"

	"github.com/jiaming2012/options-board/src/utils"
)

// TimeOfDay is a clock time within an exchange-local trading day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// ParseTimeOfDay parses "15:04" clock strings used in config files.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("ParseTimeOfDay: failed to parse %q: %w", s, err)
	}

	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// ClearingWindow is a daily interval excluded from trading-minute accounting.
type ClearingWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Calendar knows the exchange's session bounds, clearing windows and
// holidays. It is stateless: every method is a pure function of its inputs.
type Calendar struct {
	TradingStart TimeOfDay
	TradingEnd   TimeOfDay
	// ExpiryEnd replaces TradingEnd on a contract's expiry day.
	ExpiryEnd TimeOfDay
	Clearings []ClearingWindow
	holidays  map[string]struct{}
}

func New(tradingStart, tradingEnd, expiryEnd TimeOfDay, clearings []ClearingWindow, holidays []time.Time) *Calendar {
	holidaySet := make(map[string]struct{}, len(holidays))
	for _, day := range holidays {
		holidaySet[day.Format("2006-01-02")] = struct{}{}
	}

	return &Calendar{
		TradingStart: tradingStart,
		TradingEnd:   tradingEnd,
		ExpiryEnd:    expiryEnd,
		Clearings:    clearings,
		holidays:     holidaySet,
	}
}

func (c *Calendar) IsHoliday(day time.Time) bool {
	_, ok := c.holidays[day.Format("2006-01-02")]
	return ok
}

func IsWeekend(day time.Time) bool {
	return day.Weekday() == time.Saturday || day.Weekday() == time.Sunday
}

// IsTradingDay reports whether the exchange trades at all on the given day.
func (c *Calendar) IsTradingDay(day time.Time) bool {
	return !IsWeekend(day) && !c.IsHoliday(day)
}

// MinutesToExpiry returns the whole trading minutes between now and the close
// of the expiry day. Weekends and holidays contribute nothing, clearing
// windows are subtracted from each session, and the expiry day's session ends
// at ExpiryEnd instead of TradingEnd. The result is never negative: once now
// reaches the expiry-day close the answer is 0.
func (c *Calendar) MinutesToExpiry(expiry time.Time, now time.Time) int {
	expiryDay := truncateToDay(expiry)
	today := truncateToDay(now)

	if today.After(expiryDay) {
		return 0
	}
	if today.Equal(expiryDay) && !now.Before(c.ExpiryEnd.On(today)) {
		return 0
	}

	total := 0
	for day := today; !day.After(expiryDay); day = day.AddDate(0, 0, 1) {
		if !c.IsTradingDay(day) {
			continue
		}

		dayEnd := c.TradingEnd
		onExpiryDay := day.Equal(expiryDay)
		if onExpiryDay {
			dayEnd = c.ExpiryEnd
		}

		sessionStart := c.TradingStart.On(day)
		sessionEnd := dayEnd.On(day)

		// Already-elapsed minutes of today's session do not count.
		if day.Equal(today) && now.After(sessionStart) {
			sessionStart = now
		}

		if !sessionStart.Before(sessionEnd) {
			continue
		}

		minutes := int(sessionEnd.Sub(sessionStart).Minutes())

		for _, clearing := range c.Clearings {
			// A clearing window starting at or after the expiry-day close
			// never occurs before that close.
			if onExpiryDay && clearing.Start.Minutes() >= dayEnd.Minutes() {
				continue
			}

			overlapStart := utils.GetMaxTime(sessionStart, clearing.Start.On(day))
			overlapEnd := utils.GetMinTime(sessionEnd, clearing.End.On(day))
			if overlapStart.Before(overlapEnd) {
				minutes -= int(overlapEnd.Sub(overlapStart).Minutes())
			}
		}

		total += minutes
	}

	return total
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
