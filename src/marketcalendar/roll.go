package marketcalendar

import (
	"fmt"
	"time"
)

var monthCodes = map[time.Month]byte{
	time.January:   'F',
	time.February:  'G',
	time.March:     'H',
	time.April:     'J',
	time.May:       'K',
	time.June:      'M',
	time.July:      'N',
	time.August:    'Q',
	time.September: 'U',
	time.October:   'V',
	time.November:  'X',
	time.December:  'Z',
}

// quarterlyMonths are the designated contract months under the standard
// (third-Thursday) roll convention.
var quarterlyMonths = []time.Month{time.March, time.June, time.September, time.December}

var allMonths = []time.Month{
	time.January, time.February, time.March, time.April, time.May, time.June,
	time.July, time.August, time.September, time.October, time.November, time.December,
}

// RollSelector maps a base asset and a date to the active futures contract
// code. Assets in the commodity set expire on the first business day of every
// month; all others expire on the third Thursday of the quarterly months.
// Deterministic and side-effect-free.
type RollSelector struct {
	commodities map[string]struct{}
}

func NewRollSelector(commodities []string) *RollSelector {
	set := make(map[string]struct{}, len(commodities))
	for _, base := range commodities {
		set[base] = struct{}{}
	}

	return &RollSelector{commodities: set}
}

func (s *RollSelector) IsCommodity(base string) bool {
	_, ok := s.commodities[base]
	return ok
}

// ActiveContract returns base + month code + year mod 10 for the front
// contract as of the given date. A date exactly on an expiry is treated as
// already rolled: the next candidate wins.
func (s *RollSelector) ActiveContract(base string, date time.Time) string {
	months := quarterlyMonths
	expiryOf := ThirdThursday
	if s.IsCommodity(base) {
		months = allMonths
		expiryOf = FirstBusinessDay
	}

	year := date.Year()

	selMonth, selYear := months[0], year+1
	for _, m := range months {
		expiry := expiryOf(year, m)
		if civilBefore(date, expiry) {
			selMonth, selYear = m, year
			break
		}
	}

	return fmt.Sprintf("%s%c%d", base, monthCodes[selMonth], selYear%10)
}

// civilBefore compares calendar dates only, ignoring clock time and location.
func civilBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}

	return ad < bd
}

// FirstBusinessDay is the first weekday on or after the 1st of the month.
func FirstBusinessDay(year int, month time.Month) time.Time {
	day := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for IsWeekend(day) {
		day = day.AddDate(0, 0, 1)
	}

	return day
}

// ThirdThursday is the third Thursday of the month.
func ThirdThursday(year int, month time.Month) time.Time {
	day := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for day.Weekday() != time.Thursday {
		day = day.AddDate(0, 0, 1)
	}

	return day.AddDate(0, 0, 14)
}
