package marketcalendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalendar(holidays ...time.Time) *Calendar {
	return New(
		TimeOfDay{Hour: 9, Minute: 0},
		TimeOfDay{Hour: 23, Minute: 50},
		TimeOfDay{Hour: 18, Minute: 50},
		[]ClearingWindow{
			{Start: TimeOfDay{Hour: 14, Minute: 0}, End: TimeOfDay{Hour: 14, Minute: 5}},
			{Start: TimeOfDay{Hour: 18, Minute: 50}, End: TimeOfDay{Hour: 19, Minute: 5}},
		},
		holidays,
	)
}

func TestParseTimeOfDay(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tod, err := ParseTimeOfDay("18:50")
		require.NoError(t, err)
		assert.Equal(t, TimeOfDay{Hour: 18, Minute: 50}, tod)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseTimeOfDay("25:00")
		assert.Error(t, err)
	})
}

func TestMinutesToExpiry(t *testing.T) {
	calendar := newTestCalendar()

	// Monday
	expiry := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)

	// A full regular session is 890 minutes less two clearings (5 + 15).
	// The expiry-day session runs 09:00 to 18:50 (590 minutes) less the
	// afternoon clearing only, because the evening clearing starts at the
	// expiry close.
	const fullDay = 870
	const expiryDay = 585

	t.Run("expiry day from session open", func(t *testing.T) {
		now := time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)
		assert.Equal(t, expiryDay, calendar.MinutesToExpiry(expiry, now))
	})

	t.Run("prior trading day adds a full session", func(t *testing.T) {
		now := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC) // Friday
		assert.Equal(t, fullDay+expiryDay, calendar.MinutesToExpiry(expiry, now))
	})

	t.Run("weekend contributes nothing", func(t *testing.T) {
		friday := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)
		saturday := time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC)
		assert.Equal(t, fullDay+expiryDay, calendar.MinutesToExpiry(expiry, friday))
		assert.Equal(t, expiryDay, calendar.MinutesToExpiry(expiry, saturday))
	})

	t.Run("holiday contributes nothing", func(t *testing.T) {
		holidayCalendar := newTestCalendar(time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC))
		now := time.Date(2025, 6, 5, 9, 0, 0, 0, time.UTC) // Thursday
		assert.Equal(t, fullDay+expiryDay, holidayCalendar.MinutesToExpiry(expiry, now))
	})

	t.Run("mid session clamps elapsed minutes", func(t *testing.T) {
		now := time.Date(2025, 6, 9, 13, 30, 0, 0, time.UTC)
		// 320 minutes to the expiry close, less the afternoon clearing
		assert.Equal(t, 315, calendar.MinutesToExpiry(expiry, now))
	})

	t.Run("late session avoids clearing at the close", func(t *testing.T) {
		now := time.Date(2025, 6, 9, 18, 0, 0, 0, time.UTC)
		assert.Equal(t, 50, calendar.MinutesToExpiry(expiry, now))
	})

	t.Run("zero at and after the expiry close", func(t *testing.T) {
		atClose := time.Date(2025, 6, 9, 18, 50, 0, 0, time.UTC)
		afterClose := time.Date(2025, 6, 9, 22, 0, 0, 0, time.UTC)
		nextDay := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
		assert.Equal(t, 0, calendar.MinutesToExpiry(expiry, atClose))
		assert.Equal(t, 0, calendar.MinutesToExpiry(expiry, afterClose))
		assert.Equal(t, 0, calendar.MinutesToExpiry(expiry, nextDay))
	})

	t.Run("non increasing as now advances", func(t *testing.T) {
		previous := calendar.MinutesToExpiry(expiry, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
		for now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC); now.Before(expiry.AddDate(0, 0, 1)); now = now.Add(3 * time.Hour) {
			current := calendar.MinutesToExpiry(expiry, now)
			assert.LessOrEqual(t, current, previous, "minutes increased at %s", now)
			previous = current
		}
	})
}

func TestIsTradingDay(t *testing.T) {
	holiday := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC) // Thursday
	calendar := newTestCalendar(holiday)

	assert.True(t, calendar.IsTradingDay(time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)))
	assert.False(t, calendar.IsTradingDay(time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)))
	assert.False(t, calendar.IsTradingDay(holiday))
}
