package marketcalendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFirstBusinessDay(t *testing.T) {
	// June 2025 starts on a Sunday, November on a Saturday
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), FirstBusinessDay(2025, time.June))
	assert.Equal(t, time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), FirstBusinessDay(2025, time.November))
	assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), FirstBusinessDay(2025, time.September))
}

func TestThirdThursday(t *testing.T) {
	assert.Equal(t, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), ThirdThursday(2025, time.March))
	assert.Equal(t, time.Date(2025, 6, 19, 0, 0, 0, 0, time.UTC), ThirdThursday(2025, time.June))
	assert.Equal(t, time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC), ThirdThursday(2025, time.December))
}

func TestActiveContract(t *testing.T) {
	selector := NewRollSelector([]string{"BR", "NG", "SU", "W4"})

	t.Run("quarterly front contract", func(t *testing.T) {
		date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, "SiH5", selector.ActiveContract("Si", date))
	})

	t.Run("expiry date is already rolled", func(t *testing.T) {
		expiry := ThirdThursday(2025, time.March)
		assert.Equal(t, "SiM5", selector.ActiveContract("Si", expiry))
		assert.Equal(t, "SiH5", selector.ActiveContract("Si", expiry.AddDate(0, 0, -1)))
	})

	t.Run("december rolls into next year", func(t *testing.T) {
		date := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, "SiH6", selector.ActiveContract("Si", date))
	})

	t.Run("commodity rolls monthly", func(t *testing.T) {
		date := time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, "BRU5", selector.ActiveContract("BR", date))
	})

	t.Run("commodity expiry date is already rolled", func(t *testing.T) {
		expiry := FirstBusinessDay(2025, time.September)
		assert.Equal(t, "BRV5", selector.ActiveContract("BR", expiry))
	})

	t.Run("commodity december rolls into january", func(t *testing.T) {
		date := time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, "BRF6", selector.ActiveContract("BR", date))
	})

	t.Run("clock time and location are ignored", func(t *testing.T) {
		moscow := time.FixedZone("MSK", 3*60*60)
		date := time.Date(2025, 3, 19, 23, 0, 0, 0, moscow)
		assert.Equal(t, "SiH5", selector.ActiveContract("Si", date))
	})
}

func TestIsCommodity(t *testing.T) {
	selector := NewRollSelector([]string{"BR", "NG"})

	assert.True(t, selector.IsCommodity("BR"))
	assert.False(t, selector.IsCommodity("Si"))
}
